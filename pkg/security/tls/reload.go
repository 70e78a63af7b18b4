package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// CertificateReloader serves a certificate pair from disk and reloads it
// when either file's modification time changes.
type CertificateReloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewCertificateReloader creates a reloader. A non-positive interval loads
// the pair once and never reloads.
func NewCertificateReloader(certFile, keyFile string, interval time.Duration) *CertificateReloader {
	return &CertificateReloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   slog.Default().With("component", "server.tls"),
		now:      time.Now,
	}
}

// Start loads the certificate and, with a positive interval, polls for
// changes until ctx is done.
func (r *CertificateReloader) Start(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}
	if r.interval > 0 {
		go r.reloadLoop(ctx)
	}
	return nil
}

func (r *CertificateReloader) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.needsReload() {
				continue
			}
			if err := r.reload(); err != nil {
				r.logger.Error("failed to reload certificate, keeping previous one",
					"error", err,
					"cert_file", r.certFile,
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *CertificateReloader) needsReload() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return !certInfo.ModTime().Equal(r.certTime) || !keyInfo.ModTime().Equal(r.keyTime)
}

// reload loads and validates the pair. The current certificate is replaced
// only on success.
func (r *CertificateReloader) reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("certificate file: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	now := r.now()
	leaf, err := ValidateCertificate(&cert, now)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()

	r.logLoaded(leaf, now)
	return nil
}

func (r *CertificateReloader) logLoaded(leaf *x509.Certificate, now time.Time) {
	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"issuer", leaf.Issuer.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if ExpiresSoon(leaf, now) {
		r.logger.Warn("certificate expiring soon", attrs...)
		return
	}
	r.logger.Info("certificate loaded", attrs...)
}

// Certificate returns the current certificate.
func (r *CertificateReloader) Certificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificateFunc returns a tls.Config.GetCertificate callback.
func (r *CertificateReloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert := r.Certificate()
		if cert == nil {
			return nil, fmt.Errorf("no certificate loaded")
		}
		return cert, nil
	}
}
