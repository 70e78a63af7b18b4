// Broker is an HTTP admission and dispatch service.
//
// It authenticates callers against a directory of API keys, services and
// endpoints, enforces per-minute, per-hour and per-day request limits, runs
// the request synchronously or in the background, and records every
// admitted request in a request log.
//
// Usage:
//
//	# Start the server with built-in defaults
//	broker run
//
//	# Start with a configuration file
//	broker run --config /etc/broker/config.yaml
//
//	# Check a directory document before deploying it
//	broker directory validate --file directory.yaml
//
//	# Inspect recorded requests
//	broker requests list --service billing --status error
//	broker requests show 0b7c6a8e-4a57-4d8e-9d43-1f0e3c1a2b3c
//
//	# Show version information
//	broker version
package main

func main() {
	Execute()
}
