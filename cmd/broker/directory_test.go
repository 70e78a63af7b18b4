package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/broker/pkg/cli"
	"mercator-hq/broker/pkg/directory"
)

func TestDirectoryValidate_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "directory.yaml", testDirectoryDoc)

	out, err := execute(t, "directory", "validate", "--file", path)
	if err != nil {
		t.Fatalf("directory validate failed: %v", err)
	}
	if !strings.Contains(out, "2 API keys (1 usable), 2 services") {
		t.Errorf("summary line missing:\n%s", out)
	}
	if strings.Contains(out, "sk-test-cli") {
		t.Error("token printed")
	}
	// Services are sorted by name.
	if strings.Index(out, "archive") > strings.Index(out, "billing") {
		t.Errorf("services not sorted:\n%s", out)
	}
}

func TestDirectoryValidate_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "directory.yaml", testDirectoryDoc)

	out, err := execute(t, "directory", "validate", "--file", path, "--output", "json")
	if err != nil {
		t.Fatalf("directory validate failed: %v", err)
	}

	var sum directorySummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(sum.Services) != 2 || sum.Services[1].Name != "billing" {
		t.Fatalf("services = %+v", sum.Services)
	}
	billing := sum.Services[1]
	if !billing.Active || !billing.Throttled || billing.Endpoints != 2 || billing.Deprecated != 1 {
		t.Errorf("billing summary = %+v", billing)
	}
}

func TestDirectoryValidate_Invalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "directory.yaml", "api_keys: [not: valid")

	_, err := execute(t, "directory", "validate", "--file", path)
	if err == nil {
		t.Fatal("expected error for malformed document")
	}
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("exit code = %d, want %d", cli.ExitCode(err), cli.ExitFailure)
	}

	if _, err := execute(t, "directory", "validate", "--file", path, "--output", "xml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestSummarizeDirectory_ExpiredKeys(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := &directory.Document{APIKeys: []directory.APIKey{
		{ID: "a", Active: true},
		{ID: "b", Active: true, ExpiresAt: &past},
	}}

	sum := summarizeDirectory("inline", doc, time.Now())
	if sum.APIKeys != 2 || sum.Usable != 1 {
		t.Errorf("keys = %d usable = %d", sum.APIKeys, sum.Usable)
	}
	if len(sum.Rows()) != 0 {
		t.Errorf("rows = %v", sum.Rows())
	}
}
