package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"
)

// GitRepository reads a YAML document from a file inside a Git repository.
// The repository is cloned into memory on the first refresh and pulled on
// later ones.
//
// Hosted Git providers rate-limit clones and pulls, so short refresh
// intervals against them will eventually fail. Publishing the document to a
// bucket from CI and using AwsS3Repository or GcpStorageRepository scales better.
type GitRepository struct {
	document
	Name          string           // Name of the configuration source
	URL           *url.URL         // URL of the Git repository
	Path          string           // Path to the YAML file within the Git repository
	Branch        string           // Branch to check out, default branch when empty
	Auth          *http.BasicAuth  // Optional credentials for clone and pull
	cloneMu       sync.Mutex       // Serializes clone and pull
	gitRepository *git.Repository  // In-memory clone
	fs            billy.Filesystem // Worktree of the in-memory clone
}

func (g *GitRepository) GetName() string {
	return g.Name
}

// Refresh clones or pulls, then reads Path from the worktree.
func (g *GitRepository) Refresh(ctx context.Context) error {
	g.cloneMu.Lock()
	defer g.cloneMu.Unlock()

	if g.gitRepository == nil {
		if err := g.clone(ctx); err != nil {
			return fmt.Errorf("%s: clone %s: %w", g.Name, g.URL.Redacted(), err)
		}
	} else if err := g.pull(ctx); err != nil {
		return fmt.Errorf("%s: pull %s: %w", g.Name, g.URL.Redacted(), err)
	}

	file, err := g.fs.Open(g.Path)
	if err != nil {
		return fmt.Errorf("%s: open %s: %w", g.Name, g.Path, err)
	}
	defer func(file billy.File) {
		if err := file.Close(); err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	fileContent, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("%s: read %s: %w", g.Name, g.Path, err)
	}
	return g.swap(g.Name, fileContent)
}

func (g *GitRepository) clone(ctx context.Context) error {
	fs := memfs.New()
	logrus.Debugf("Cloning %s into memory", g.URL.Redacted())
	r, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:  g.URL.String(),
		Auth: g.Auth,
	})
	if err != nil {
		return err
	}

	if g.Branch != "" {
		w, err := r.Worktree()
		if err != nil {
			return err
		}
		err = r.FetchContext(ctx, &git.FetchOptions{
			RefSpecs: []config.RefSpec{"refs/*:refs/*", "HEAD:refs/heads/HEAD"},
			Auth:     g.Auth,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return err
		}
		err = w.Checkout(&git.CheckoutOptions{
			Branch: plumbing.NewBranchReferenceName(g.Branch),
			Force:  true,
		})
		if err != nil {
			return err
		}
	}

	logrus.Debug("Cloned")
	g.gitRepository = r
	g.fs = fs
	return nil
}

func (g *GitRepository) pull(ctx context.Context) error {
	w, err := g.gitRepository.Worktree()
	if err != nil {
		return err
	}
	logrus.Debug("Pulling")

	pullOptions := &git.PullOptions{Auth: g.Auth}
	if g.Branch != "" {
		pullOptions = &git.PullOptions{
			ReferenceName: plumbing.NewBranchReferenceName(g.Branch),
			Force:         true,
			SingleBranch:  true,
			Auth:          g.Auth,
		}
	}

	err = w.PullContext(ctx, pullOptions)
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		logrus.Debug("Already up to date")
	case err != nil:
		return err
	default:
		logrus.Debug("Pulled")
	}
	return nil
}
