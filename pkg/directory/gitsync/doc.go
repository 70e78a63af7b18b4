// Package gitsync keeps a directory document in sync with a Git repository.
//
// The repository is cloned bare into a local path and fetched on an
// interval. When the tracked branch moves and the commit touches the
// document, the document is read straight from the commit tree and swapped
// into a directory.Static. A commit whose document fails to parse is
// rejected and the previously applied document stays live until a newer
// commit fixes it.
//
//	repo, err := gitsync.NewRepository(cfg.Directory.Git)
//	if err := repo.Clone(ctx); err != nil { ... }
//	doc, head, err := repo.Document()
//	static, err := directory.NewStatic(doc)
//	syncer := gitsync.NewSyncer(repo, static, head.SHA, cfg.Directory.Git.PollInterval)
//	go syncer.Run(ctx)
package gitsync
