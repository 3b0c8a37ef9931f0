// Package content reads and writes a single file in a GitHub repository on
// behalf of the admin tool. Conflict detection is left to GitHub: a write
// carries the last observed blob sha and GitHub rejects it if the file moved.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gogithub "github.com/google/go-github/v66/github"
)

var (
	// ErrNotFound is returned when the file (or ref) does not exist upstream.
	ErrNotFound = errors.New("not found")
	// ErrNotAFile is returned when the path names a directory.
	ErrNotAFile = errors.New("path is not a file")
	// ErrInvalidRequest wraps request-shape failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// Coordinate identifies a file in a repository at a ref or branch.
type Coordinate struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", c.Owner, c.Repo, c.Path, c.Ref)
}

func (c Coordinate) validate() error {
	if c.Owner == "" || c.Repo == "" || c.Path == "" {
		return fmt.Errorf("%w: owner, repo and path are required", ErrInvalidRequest)
	}
	return nil
}

// Snapshot is the upstream view of a file at fetch time.
type Snapshot struct {
	Content string
	SHA     string
}

// WriteRequest is a single push. Coordinate.Ref is the target branch.
type WriteRequest struct {
	Coordinate
	Message string
	Content string
	PRMode  bool
	// SHA, when set, is used as the revision marker instead of looking it up.
	// In PR mode it guards the write on the new branch, which starts at the
	// base branch head.
	SHA string
	// Admin is the authenticated admin name, used in log lines and PR bodies.
	Admin string
}

func (r WriteRequest) validate() error {
	if err := r.Coordinate.validate(); err != nil || r.Content == "" {
		return fmt.Errorf("%w: owner, repo, path and content are required", ErrInvalidRequest)
	}
	return nil
}

// Commit is the commit GitHub reports for a write. Raw is GitHub's JSON
// object, forwarded to callers unchanged.
type Commit struct {
	SHA string
	Raw json.RawMessage
}

// WriteResult holds the commit (direct mode) or the pull request and its
// branch (PR mode).
type WriteResult struct {
	Commit      *Commit
	PullRequest *gogithub.PullRequest
	Branch      string
}

// FileWrite is one create-or-update call against the contents API.
// An empty SHA creates the file.
type FileWrite struct {
	Coordinate
	Message string
	Content string
	SHA     string
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// Upstream is the GitHub surface the service needs. Implemented by
// *github.Client; tests use the githubtest fake or a stub.
type Upstream interface {
	GetFile(ctx context.Context, coord Coordinate) (*Snapshot, error)
	// FileSHA returns only the blob sha, without reading the content.
	FileSHA(ctx context.Context, coord Coordinate) (string, error)
	PutFile(ctx context.Context, w FileWrite) (*Commit, error)
	BranchHead(ctx context.Context, owner, repo, branch string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error
	DeleteBranch(ctx context.Context, owner, repo, branch string) error
	OpenPullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*gogithub.PullRequest, error)
}
