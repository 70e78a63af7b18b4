package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/broker/pkg/requestlog"
)

const testDirectoryDoc = `
api_keys:
  - id: key-1
    token: sk-test-cli-0001
    active: true
  - id: key-2
    token: sk-test-cli-0002
    active: false
services:
  - name: billing
    active: true
    throttle_enabled: true
    requests_per_minute: 10
    endpoints:
      - name: invoice
        version: v1
        deprecated: true
      - name: invoice
        version: v2
  - name: archive
    active: false
`

// resetFlags restores every command flag to its default. Flag variables are
// package globals and keep their values between Execute calls.
func resetFlags() {
	cfgFile = ""
	verbose = false
	runFlags = struct {
		listenAddress string
		logLevel      string
		directoryFile string
		dryRun        bool
	}{}
	directoryFlags.file = ""
	directoryFlags.output = "text"
	requestsFlags.apiKeyID = ""
	requestsFlags.service = ""
	requestsFlags.status = ""
	requestsFlags.timeRange = ""
	requestsFlags.limit = requestlog.DefaultQueryLimit
	requestsFlags.offset = 0
	requestsFlags.output = "text"
	certsCheckFlags.certFile = ""
	certsCheckFlags.keyFile = ""
	generateFlags.hosts = "localhost"
	generateFlags.org = "Broker"
	generateFlags.validity = 365
	generateFlags.keySize = 2048
	generateFlags.output = "certs"
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}
