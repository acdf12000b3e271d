// Package fetch acquires the upstream template sources: it clones each
// configured repository into the workspace and installs the named cover
// page files into the sources directory, validating every file by zip
// magic before install.
package fetch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/openagreements/docprep/core/errors"
	"github.com/openagreements/docprep/internal/config"
	"github.com/openagreements/docprep/internal/fileutil"
	"github.com/openagreements/docprep/internal/logging"
	"github.com/openagreements/docprep/internal/validation"
)

// Client clones template source repositories into a workspace
// directory.
type Client struct {
	workspaceDir string
}

// NewClient creates a fetch client rooted at workspaceDir.
func NewClient(workspaceDir string) *Client {
	return &Client{workspaceDir: workspaceDir}
}

// Result reports one repository fetch.
type Result struct {
	Repo      string
	ClonePath string
	Installed []string
}

// FetchAll clones every configured repository and installs its files
// into sourcesDir.
func (c *Client) FetchAll(ctx context.Context, repos []config.Repo, sourcesDir string) ([]*Result, error) {
	results := make([]*Result, 0, len(repos))
	for _, repo := range repos {
		res, err := c.Fetch(ctx, repo, sourcesDir)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Fetch clones one repository and installs its named files. An existing
// clone is removed first; every fetch starts from a clean checkout.
func (c *Client) Fetch(ctx context.Context, repo config.Repo, sourcesDir string) (*Result, error) {
	clonePath, err := c.clone(ctx, repo)
	if err != nil {
		return nil, err
	}

	res := &Result{Repo: repo.Name, ClonePath: clonePath}
	for _, name := range repo.Files {
		installed, err := InstallFile(clonePath, name, sourcesDir)
		if err != nil {
			return nil, err
		}
		logging.InfoContext(ctx, "source_installed", "repo", repo.Name, "file", name, "path", installed)
		res.Installed = append(res.Installed, installed)
	}
	return res, nil
}

func (c *Client) clone(ctx context.Context, repo config.Repo) (string, error) {
	clonePath := filepath.Join(c.workspaceDir, repo.Name)
	logging.DebugContext(ctx, "cloning_repository", "repo", repo.Name, "url", repo.URL, "branch", repo.Branch)

	if err := os.RemoveAll(clonePath); err != nil {
		return "", errors.NewIO("remove existing clone", clonePath, err)
	}

	opts := &git.CloneOptions{URL: repo.URL}
	if repo.Branch != "" {
		opts.ReferenceName = plumbing.ReferenceName("refs/heads/" + repo.Branch)
		opts.SingleBranch = true
	}

	repository, err := git.PlainCloneContext(ctx, clonePath, false, opts)
	if err != nil {
		return "", classifyCloneError(repo.URL, err)
	}
	if ref, herr := repository.Head(); herr == nil {
		logging.InfoContext(ctx, "repository_cloned", "repo", repo.Name, "commit", ref.Hash().String()[:8])
	} else {
		logging.InfoContext(ctx, "repository_cloned", "repo", repo.Name)
	}
	return clonePath, nil
}

// classifyCloneError maps common go-git failures onto the error
// taxonomy so callers need no string matching.
func classifyCloneError(url string, err error) error {
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "reference not found"):
		return errors.NewValidation("branch", "branch not found in "+url)
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist"):
		return &errors.NotFoundError{Resource: "repository", ID: url, Err: err}
	default:
		return errors.Wrapf(err, "clone %s", url)
	}
}

// InstallFile copies one named file from a clone into sourcesDir after
// validating the filename and the zip magic bytes.
func InstallFile(clonePath, name, sourcesDir string) (string, error) {
	if err := validation.ValidateFilename(name); err != nil {
		return "", err
	}

	src := filepath.Join(clonePath, name)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("source file", src)
		}
		return "", errors.NewIO("read source file", src, err)
	}
	if !validation.IsZipHeader(data) {
		return "", errors.NewValidation("file", name+" is not a DOCX package (bad magic bytes)")
	}

	dst := filepath.Join(sourcesDir, filepath.Base(name))
	if err := fileutil.CopyFile(src, dst); err != nil {
		return "", errors.NewIO("install source file", dst, err)
	}
	return dst, nil
}
