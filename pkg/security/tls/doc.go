/*
Package tls builds the listener TLS configuration of the broker.

	reloader := tls.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
	if err := reloader.Start(ctx); err != nil {
		return err
	}
	tlsConfig, err := tls.NewServerConfig(cfg, reloader)

Certificates are served through the reloader, so renewed certificate files
are picked up on the next handshake after the reload interval without a
restart. A certificate that fails to load or has expired is rejected and the
previous one stays in use.
*/
package tls
