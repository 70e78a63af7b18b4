// Package logging builds the process slog logger.
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging)
//
// Setup installs the logger as slog.Default. Components derive their own
// logger from it with a component attribute:
//
//	logger := slog.Default().With("component", "limits.engine")
//
// Records logged with a context carry the request id and API key id stored
// by WithRequestID and WithAPIKeyID. With redaction enabled, values under
// keys such as token, api_key or authorization are masked, and sk-style keys
// and bearer tokens are masked wherever they appear:
//
//	token=sk-live-abc123456 → token=sk-li***
package logging
