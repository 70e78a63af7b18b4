// Package directory resolves API keys, services and endpoints for the broker.
//
// The broker core only depends on the Directory interface. This package ships
// a file-backed implementation: a YAML document is parsed into a Static
// catalog, optionally kept fresh by a Watcher (fsnotify) and fronted by a
// Cached read-through TTL cache. Package gitsync provides a Git-backed
// alternative to the file watcher.
//
// # Document format
//
//	api_keys:
//	  - token: sk-live-123
//	    active: true
//	    throttle_enabled: true
//	    requests_per_minute: 5
//	services:
//	  - name: billing
//	    active: true
//	    throttle_enabled: true
//	    requests_per_day: 10000
//	    endpoints:
//	      - name: invoice
//	        version: v1
//	        requests_per_minute: 60
//
// IDs are optional. Service IDs default to the service name, endpoint IDs to
// "<service>/<name>@<version>", and API key IDs to a name-based UUID derived
// from the token, so usage counters stay attached to the same scope across
// reloads.
package directory
