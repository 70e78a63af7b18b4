package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/broker/pkg/config"
	"mercator-hq/broker/pkg/directory"
)

const remoteName = "origin"

// ErrNotCloned is returned by operations that need Clone to have succeeded.
var ErrNotCloned = errors.New("repository not initialized, call Clone first")

// Repository is a bare local clone of the repository holding the directory
// document. Only the remote-tracking ref of the configured branch is read;
// there is no working tree.
type Repository struct {
	cfg     config.DirectoryGitConfig
	auth    AuthProvider
	logger  *slog.Logger
	repo    *gogit.Repository
	mu      sync.RWMutex
	metrics RepositoryMetrics
}

// NewRepository validates cfg and builds the auth provider. Nothing touches
// the network until Clone.
func NewRepository(cfg config.DirectoryGitConfig) (*Repository, error) {
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("document path cannot be empty")
	}
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("local path cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultGitTimeout
	}
	cfg.Path = path.Clean(cfg.Path)

	auth, err := NewAuthProvider(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	return &Repository{
		cfg:    cfg,
		auth:   auth,
		logger: slog.Default().With("component", "directory.git"),
	}, nil
}

// Clone clones the repository into the local path, or opens the clone left
// there by a previous run and fetches it. A failed fetch of an existing
// clone is logged and the cached refs are used.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.CloneDuration = time.Since(start)
	}()

	repo, err := gogit.PlainOpen(r.cfg.LocalPath)
	switch {
	case err == nil:
		if err := r.checkOrigin(repo); err != nil {
			return err
		}
		r.repo = repo
		if _, err := r.fetchLocked(ctx); err != nil {
			r.logger.Warn("fetch of existing clone failed, using cached refs",
				"path", r.cfg.LocalPath,
				"error", err)
		}
		return nil
	case !errors.Is(err, gogit.ErrRepositoryNotExists):
		return fmt.Errorf("failed to open existing clone: %w", err)
	}

	if err := os.MkdirAll(r.cfg.LocalPath, 0750); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}

	auth, err := r.auth.Auth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	repo, err = gogit.PlainCloneContext(cloneCtx, r.cfg.LocalPath, true, &gogit.CloneOptions{
		URL:           r.cfg.Repository,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Depth:         r.cfg.Depth,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", r.cfg.Repository, err)
	}

	r.repo = repo
	r.logger.Info("directory repository cloned",
		"repository", r.cfg.Repository,
		"branch", r.cfg.Branch,
		"auth", r.auth.Type(),
		"path", r.cfg.LocalPath)
	return nil
}

// checkOrigin refuses a clone of some other repository sitting in the local
// path.
func (r *Repository) checkOrigin(repo *gogit.Repository) error {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return fmt.Errorf("existing clone at %s has no %s remote: %w", r.cfg.LocalPath, remoteName, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != r.cfg.Repository {
		return fmt.Errorf("existing clone at %s tracks %v, not %s", r.cfg.LocalPath, urls, r.cfg.Repository)
	}
	return nil
}

// Fetch updates the remote-tracking branch. It reports whether anything was
// fetched.
func (r *Repository) Fetch(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return false, ErrNotCloned
	}
	return r.fetchLocked(ctx)
}

func (r *Repository) fetchLocked(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() {
		r.metrics.FetchDuration = time.Since(start)
		r.metrics.LastFetchTime = time.Now()
	}()

	auth, err := r.auth.Auth()
	if err != nil {
		r.metrics.FailedFetches++
		return false, fmt.Errorf("failed to get auth: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	err = r.repo.FetchContext(fetchCtx, &gogit.FetchOptions{
		RemoteName: remoteName,
		Depth:      r.cfg.Depth,
		Auth:       auth,
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		r.metrics.SuccessfulFetches++
		return false, nil
	}
	if err != nil {
		r.metrics.FailedFetches++
		return false, fmt.Errorf("failed to fetch: %w", err)
	}
	r.metrics.SuccessfulFetches++
	return true, nil
}

// Head returns the commit at the tip of the tracked branch.
func (r *Repository) Head() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commit, err := r.tipLocked()
	if err != nil {
		return nil, err
	}
	return r.commitInfo(commit), nil
}

func (r *Repository) tipLocked() (*object.Commit, error) {
	if r.repo == nil {
		return nil, ErrNotCloned
	}
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, r.cfg.Branch), true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s/%s: %w", remoteName, r.cfg.Branch, err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return commit, nil
}

func (r *Repository) commitInfo(c *object.Commit) *CommitInfo {
	return &CommitInfo{
		SHA:        c.Hash.String(),
		Author:     c.Author.Name,
		Email:      c.Author.Email,
		Timestamp:  c.Author.When,
		Message:    c.Message,
		Branch:     r.cfg.Branch,
		Repository: r.cfg.Repository,
	}
}

// ReadDocument returns the raw document at the given commit.
func (r *Repository) ReadDocument(sha string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}
	commit, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, fmt.Errorf("commit %s not found: %w", shortSHA(sha), err)
	}
	return readFile(commit, r.cfg.Path)
}

func readFile(commit *object.Commit, name string) ([]byte, error) {
	f, err := commit.File(name)
	if err != nil {
		return nil, fmt.Errorf("%s at %s: %w", name, shortSHA(commit.Hash.String()), err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return []byte(contents), nil
}

// Document parses the document at the tip of the tracked branch.
func (r *Repository) Document() (*directory.Document, *CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commit, err := r.tipLocked()
	if err != nil {
		return nil, nil, err
	}
	data, err := readFile(commit, r.cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := directory.ParseDocument(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s at %s: %w", r.cfg.Path, shortSHA(commit.Hash.String()), err)
	}
	return doc, r.commitInfo(commit), nil
}

// ChangedFiles returns the paths that differ between two commits.
func (r *Repository) ChangedFiles(fromSHA, toSHA string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}

	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get to commit: %w", err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get to tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// DocumentPath is the document's path inside the repository.
func (r *Repository) DocumentPath() string {
	return r.cfg.Path
}

// Metrics returns a copy of the repository metrics.
func (r *Repository) Metrics() RepositoryMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}
