package tls

import (
	"crypto/tls"
	"fmt"

	"mercator-hq/broker/pkg/config"
)

// NewServerConfig converts the server.tls section to a crypto/tls config
// that takes its certificate from reloader.
func NewServerConfig(cfg config.TLSConfig, reloader *CertificateReloader) (*tls.Config, error) {
	if reloader == nil {
		return nil, fmt.Errorf("certificate reloader is required")
	}
	minVersion, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	// #nosec G402 - MinVersion is 1.2 or higher
	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: reloader.GetCertificateFunc(),
	}, nil
}

// ParseVersion maps "1.2" and "1.3" to their crypto/tls constants. An
// empty string means 1.2.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q (use 1.2 or 1.3)", v)
	}
}
