package gitsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/broker/pkg/config"
)

const initialDocument = `
api_keys:
  - token: sk-test-git-1
    active: true
services:
  - name: billing
    active: true
`

// sourceRepo is a non-bare repository standing in for the remote.
type sourceRepo struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newSourceRepo(t *testing.T) *sourceRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	src := &sourceRepo{t: t, dir: dir, repo: repo}
	src.commit("initial directory", map[string]string{"directory.yaml": initialDocument})
	return src
}

// commit writes files and commits them, returning the new SHA.
func (s *sourceRepo) commit(msg string, files map[string]string) string {
	s.t.Helper()
	wt, err := s.repo.Worktree()
	if err != nil {
		s.t.Fatalf("failed to get worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(s.dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			s.t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			s.t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			s.t.Fatalf("failed to add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		s.t.Fatalf("failed to commit: %v", err)
	}
	return hash.String()
}

func testGitConfig(source, localPath string) config.DirectoryGitConfig {
	return config.DirectoryGitConfig{
		Enabled:      true,
		Repository:   source,
		Branch:       "master", // go-git init creates "master"
		Path:         "directory.yaml",
		LocalPath:    localPath,
		PollInterval: time.Hour,
		Timeout:      10 * time.Second,
		Auth:         config.GitAuthConfig{Type: "none"},
	}
}

func cloneTestRepo(t *testing.T, src *sourceRepo) *Repository {
	t.Helper()
	repo, err := NewRepository(testGitConfig(src.dir, filepath.Join(t.TempDir(), "clone")))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	return repo
}

func TestNewRepository(t *testing.T) {
	valid := testGitConfig("https://git.example.com/ops/directory.git", "/tmp/directory-repo")

	tests := []struct {
		name    string
		mutate  func(*config.DirectoryGitConfig)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*config.DirectoryGitConfig) {}},
		{name: "empty repository URL", mutate: func(c *config.DirectoryGitConfig) { c.Repository = "" }, wantErr: true},
		{name: "empty branch", mutate: func(c *config.DirectoryGitConfig) { c.Branch = "" }, wantErr: true},
		{name: "empty path", mutate: func(c *config.DirectoryGitConfig) { c.Path = "" }, wantErr: true},
		{name: "empty local path", mutate: func(c *config.DirectoryGitConfig) { c.LocalPath = "" }, wantErr: true},
		{name: "unknown auth", mutate: func(c *config.DirectoryGitConfig) { c.Auth.Type = "kerberos" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			repo, err := NewRepository(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRepository() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && repo == nil {
				t.Fatal("NewRepository() returned nil repository")
			}
		})
	}
}

func TestNewRepository_CleansDocumentPath(t *testing.T) {
	cfg := testGitConfig("https://git.example.com/ops/directory.git", "/tmp/directory-repo")
	cfg.Path = "./config//directory.yaml"
	repo, err := NewRepository(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := repo.DocumentPath(); got != "config/directory.yaml" {
		t.Errorf("DocumentPath() = %q", got)
	}
}

func TestRepository_NotCloned(t *testing.T) {
	repo, err := NewRepository(testGitConfig("/nonexistent/repo", t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Head(); !errors.Is(err, ErrNotCloned) {
		t.Errorf("Head() error = %v, want ErrNotCloned", err)
	}
	if _, err := repo.Fetch(context.Background()); !errors.Is(err, ErrNotCloned) {
		t.Errorf("Fetch() error = %v, want ErrNotCloned", err)
	}
	if _, err := repo.ReadDocument("abc"); !errors.Is(err, ErrNotCloned) {
		t.Errorf("ReadDocument() error = %v, want ErrNotCloned", err)
	}
}

func TestRepository_CloneAndDocument(t *testing.T) {
	src := newSourceRepo(t)
	repo := cloneTestRepo(t, src)

	doc, head, err := repo.Document()
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if len(doc.APIKeys) != 1 || len(doc.Services) != 1 {
		t.Errorf("document = %d keys, %d services", len(doc.APIKeys), len(doc.Services))
	}
	if head.Author != "Test User" || head.Email != "test@example.com" {
		t.Errorf("author = %s <%s>", head.Author, head.Email)
	}
	if head.Branch != "master" || head.Repository != src.dir {
		t.Errorf("commit = %+v", head)
	}
	if len(head.Short()) != 8 {
		t.Errorf("Short() = %q", head.Short())
	}

	m := repo.Metrics()
	if m.CloneDuration == 0 {
		t.Error("clone duration not recorded")
	}
}

func TestRepository_CloneErrors(t *testing.T) {
	src := newSourceRepo(t)

	t.Run("missing repository", func(t *testing.T) {
		repo, err := NewRepository(testGitConfig(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "clone")))
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.Clone(context.Background()); err == nil {
			t.Error("expected clone of missing repository to fail")
		}
	})

	t.Run("missing branch", func(t *testing.T) {
		cfg := testGitConfig(src.dir, filepath.Join(t.TempDir(), "clone"))
		cfg.Branch = "release"
		repo, err := NewRepository(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.Clone(context.Background()); err == nil {
			t.Error("expected clone of missing branch to fail")
		}
	})

	t.Run("document missing at path", func(t *testing.T) {
		cfg := testGitConfig(src.dir, filepath.Join(t.TempDir(), "clone"))
		cfg.Path = "prod/directory.yaml"
		repo, err := NewRepository(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.Clone(context.Background()); err != nil {
			t.Fatalf("Clone() error = %v", err)
		}
		if _, _, err := repo.Document(); err == nil {
			t.Error("expected Document() to fail for a missing path")
		}
	})
}

func TestRepository_ReopensExistingClone(t *testing.T) {
	src := newSourceRepo(t)
	local := filepath.Join(t.TempDir(), "clone")

	first, err := NewRepository(testGitConfig(src.dir, local))
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Clone(context.Background()); err != nil {
		t.Fatalf("first Clone() error = %v", err)
	}

	sha := src.commit("add payments", map[string]string{"directory.yaml": initialDocument + `  - name: payments
    active: true
`})

	second, err := NewRepository(testGitConfig(src.dir, local))
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Clone(context.Background()); err != nil {
		t.Fatalf("second Clone() error = %v", err)
	}
	head, err := second.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.SHA != sha {
		t.Errorf("reopened clone at %s, want fetched commit %s", head.Short(), shortSHA(sha))
	}
}

func TestRepository_RejectsForeignClone(t *testing.T) {
	src := newSourceRepo(t)
	other := newSourceRepo(t)
	local := filepath.Join(t.TempDir(), "clone")

	first, err := NewRepository(testGitConfig(src.dir, local))
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Clone(context.Background()); err != nil {
		t.Fatal(err)
	}

	second, err := NewRepository(testGitConfig(other.dir, local))
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Clone(context.Background()); err == nil {
		t.Error("expected clone of another repository in the same path to fail")
	}
}

func TestRepository_FetchAndChangedFiles(t *testing.T) {
	src := newSourceRepo(t)
	repo := cloneTestRepo(t, src)
	before, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}

	updated, err := repo.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if updated {
		t.Error("Fetch() reported changes with nothing new")
	}

	sha := src.commit("docs", map[string]string{"README.md": "# directory\n"})
	updated, err = repo.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !updated {
		t.Error("Fetch() missed a new commit")
	}

	files, err := repo.ChangedFiles(before.SHA, sha)
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	if len(files) != 1 || files[0] != "README.md" {
		t.Errorf("ChangedFiles() = %v", files)
	}

	data, err := repo.ReadDocument(sha)
	if err != nil {
		t.Fatalf("ReadDocument() error = %v", err)
	}
	if string(data) != initialDocument {
		t.Errorf("ReadDocument() = %q", data)
	}

	if m := repo.Metrics(); m.SuccessfulFetches != 2 || m.FailedFetches != 0 {
		t.Errorf("metrics = %+v", m)
	}
}
