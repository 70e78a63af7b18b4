package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/broker/pkg/cli"
)

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	dirPath := writeFile(t, dir, "directory.yaml", testDirectoryDoc)
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
server:
  listen_address: "127.0.0.1:0"
directory:
  file_path: %q
counters:
  backend: memory
request_log:
  backend: memory
`, dirPath))

	out, err := execute(t, "--config", cfgPath, "run", "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, dirPath) {
		t.Errorf("output = %s", out)
	}
}

func TestRunDryRun_GitDirectory(t *testing.T) {
	repo := initDirectoryRepo(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
directory:
  git:
    enabled: true
    repository: %q
    branch: master
    local_path: %q
counters:
  backend: memory
request_log:
  backend: memory
`, repo, filepath.Join(dir, "clone")))

	out, err := execute(t, "--config", cfgPath, "run", "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run failed: %v", err)
	}
	if !strings.Contains(out, repo+"@master:directory.yaml valid at commit") {
		t.Errorf("output = %s", out)
	}
}

func TestRunDryRun_Errors(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
directory:
  file_path: %q
`, missing))

	_, err := execute(t, "--config", cfgPath, "run", "--dry-run")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("missing directory exit code = %d (err %v)", cli.ExitCode(err), err)
	}

	_, err = execute(t, "--config", filepath.Join(dir, "nope.yaml"), "run", "--dry-run")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("missing config exit code = %d (err %v)", cli.ExitCode(err), err)
	}

	_, err = execute(t, "--config", cfgPath, "run", "--dry-run", "--log-level", "loud")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("bad log level exit code = %d (err %v)", cli.ExitCode(err), err)
	}
}
