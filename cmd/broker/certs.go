package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/broker/pkg/cli"
	brokertls "mercator-hq/broker/pkg/security/tls"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage the server TLS certificate",
	Long: `Check the certificate configured under server.tls, or generate a
self-signed pair for local testing.

Examples:
  # Check the configured certificate and key
  broker certs check

  # Check specific files
  broker certs check --cert server.crt --key server.key

  # Generate a self-signed certificate for localhost
  broker certs generate --host localhost,127.0.0.1`,
}

var certsCheckFlags struct {
	certFile string
	keyFile  string
}

var certsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that a certificate and key load and are currently valid",
	RunE:  checkCertificate,
}

var generateFlags struct {
	hosts    string
	org      string
	validity int
	keySize  int
	output   string
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed certificate for testing",
	Long: `Generate a self-signed certificate and private key for development.

Do not use self-signed certificates in production.`,
	RunE: generateCertificate,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsCheckCmd, certsGenerateCmd)

	certsCheckCmd.Flags().StringVar(&certsCheckFlags.certFile, "cert", "", "certificate file (uses server.tls.cert_file if not specified)")
	certsCheckCmd.Flags().StringVar(&certsCheckFlags.keyFile, "key", "", "private key file (uses server.tls.key_file if not specified)")

	certsGenerateCmd.Flags().StringVar(&generateFlags.hosts, "host", "localhost", "comma-separated hostnames and IPs")
	certsGenerateCmd.Flags().StringVar(&generateFlags.org, "org", "Broker", "organization name")
	certsGenerateCmd.Flags().IntVar(&generateFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().IntVar(&generateFlags.keySize, "key-size", 2048, "RSA key size (2048, 3072, 4096)")
	certsGenerateCmd.Flags().StringVarP(&generateFlags.output, "output", "o", "certs", "output directory")
}

func checkCertificate(cmd *cobra.Command, args []string) error {
	certFile, keyFile := certsCheckFlags.certFile, certsCheckFlags.keyFile
	if certFile == "" || keyFile == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if certFile == "" {
			certFile = cfg.Server.TLS.CertFile
		}
		if keyFile == "" {
			keyFile = cfg.Server.TLS.KeyFile
		}
	}
	if certFile == "" || keyFile == "" {
		return cli.NewConfigError("server.tls", "cert_file and key_file are required")
	}

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return cli.NewCommandError("certs check", fmt.Errorf("certificate and key do not load: %w", err))
	}
	now := time.Now()
	leaf, err := brokertls.ValidateCertificate(&pair, now)
	if err != nil {
		return cli.NewCommandError("certs check", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Certificate and key match")
	fmt.Fprintf(out, "✓ Certificate valid until %s\n", leaf.NotAfter.Format(time.RFC3339))
	if brokertls.ExpiresSoon(leaf, now) {
		fmt.Fprintf(out, "⚠  Certificate expires in %d days\n", int(leaf.NotAfter.Sub(now).Hours()/24))
	}
	printCertificate(out, leaf)
	return nil
}

func printCertificate(out io.Writer, cert *x509.Certificate) {
	fmt.Fprintln(out, "\nCertificate Details:")
	fmt.Fprintf(out, "  Subject: %s\n", cert.Subject.CommonName)
	if len(cert.Subject.Organization) > 0 {
		fmt.Fprintf(out, "  Organization: %s\n", cert.Subject.Organization[0])
	}
	fmt.Fprintf(out, "  Issuer: %s\n", cert.Issuer.CommonName)
	fmt.Fprintf(out, "  Serial: %x\n", cert.SerialNumber)
	fmt.Fprintf(out, "  Valid From: %s\n", cert.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "  Valid Until: %s\n", cert.NotAfter.Format(time.RFC3339))
	if len(cert.DNSNames) > 0 {
		fmt.Fprintf(out, "  SANs (DNS): %v\n", cert.DNSNames)
	}
	if len(cert.IPAddresses) > 0 {
		fmt.Fprintf(out, "  SANs (IP): %v\n", cert.IPAddresses)
	}
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	if generateFlags.keySize != 2048 && generateFlags.keySize != 3072 && generateFlags.keySize != 4096 {
		return fmt.Errorf("invalid key size: %d (must be 2048, 3072, or 4096)", generateFlags.keySize)
	}
	if generateFlags.validity <= 0 {
		return fmt.Errorf("invalid validity: %d days", generateFlags.validity)
	}

	var dnsNames []string
	var ipAddresses []net.IP
	hosts := strings.Split(generateFlags.hosts, ",")
	for i, host := range hosts {
		host = strings.TrimSpace(host)
		hosts[i] = host
		if ip := net.ParseIP(host); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else if host != "" {
			dnsNames = append(dnsNames, host)
		}
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, generateFlags.keySize)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{generateFlags.org},
			CommonName:   hosts[0],
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 0, generateFlags.validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(generateFlags.output, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	certPath := filepath.Join(generateFlags.output, "cert.pem")
	if err := writePEM(certPath, 0644, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return err
	}
	keyPath := filepath.Join(generateFlags.output, "key.pem")
	keyBlock := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}
	if err := writePEM(keyPath, 0600, keyBlock); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Certificate generated: %s\n", certPath)
	fmt.Fprintf(out, "✓ Private key generated: %s\n", keyPath)
	fmt.Fprintln(out, "⚠  Self-signed certificates are for testing only")
	fmt.Fprintln(out, "\nTo use it, add to your config.yaml:")
	fmt.Fprintln(out, "server:")
	fmt.Fprintln(out, "  tls:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintf(out, "    cert_file: %q\n", certPath)
	fmt.Fprintf(out, "    key_file: %q\n", keyPath)
	return nil
}

func writePEM(path string, perm os.FileMode, block *pem.Block) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := pem.Encode(f, block); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
