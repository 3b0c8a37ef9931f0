package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/google/uuid"
)

// Options configures a Service.
type Options struct {
	// DefaultBranch is used when a request names no ref or branch.
	DefaultBranch string
	// CommitPrefix starts generated commit messages and branch names.
	CommitPrefix string
	// CleanupOrphanBranches makes a failed PR flow delete the branch it created.
	CleanupOrphanBranches bool
	Logger                *slog.Logger
}

// Service implements pull and push. It holds no per-request state.
type Service struct {
	up     Upstream
	opts   Options
	log    *slog.Logger
	now    func() time.Time
	suffix func() string
}

func NewService(up Upstream, opts Options) *Service {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}
	if opts.CommitPrefix == "" {
		opts.CommitPrefix = "admin"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		up:     up,
		opts:   opts,
		log:    log,
		now:    time.Now,
		suffix: randomSuffix,
	}
}

// Pull returns the decoded content and sha of the file at coord.
func (s *Service) Pull(ctx context.Context, coord Coordinate) (*Snapshot, error) {
	if err := coord.validate(); err != nil {
		return nil, err
	}
	if coord.Ref == "" {
		coord.Ref = s.opts.DefaultBranch
	}
	return s.up.GetFile(ctx, coord)
}

// Push writes req.Content either straight to the branch or, in PR mode,
// through a new branch and pull request.
func (s *Service) Push(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Ref == "" {
		req.Ref = s.opts.DefaultBranch
	}
	if req.Message == "" {
		req.Message = s.defaultMessage(req.Path)
	}
	if req.PRMode {
		return s.pushPR(ctx, req)
	}
	return s.pushDirect(ctx, req)
}

func (s *Service) pushDirect(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	sha := req.SHA
	if sha == "" {
		var err error
		if sha, err = s.currentSHA(ctx, req.Coordinate); err != nil {
			return nil, err
		}
	}
	commit, err := s.up.PutFile(ctx, FileWrite{
		Coordinate: req.Coordinate,
		Message:    req.Message,
		Content:    req.Content,
		SHA:        sha,
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "file committed",
		"file", req.Coordinate.String(), "created", sha == "", "commit", commit.SHA, "admin", req.Admin)
	return &WriteResult{Commit: commit}, nil
}

func (s *Service) pushPR(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	base := req.Ref
	head, err := s.up.BranchHead(ctx, req.Owner, req.Repo, base)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", base, err)
	}

	branch := s.branchName()
	if err := s.up.CreateBranch(ctx, req.Owner, req.Repo, branch, head); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}

	pr, err := s.stageAndOpen(ctx, req, branch)
	if err != nil {
		s.abandonBranch(ctx, req, branch, err)
		return nil, err
	}
	s.log.InfoContext(ctx, "pull request opened",
		"file", req.Coordinate.String(), "branch", branch, "pr", pr.GetNumber(), "admin", req.Admin)
	return &WriteResult{PullRequest: pr, Branch: branch}, nil
}

// stageAndOpen commits the content onto branch and opens the PR into req.Ref.
func (s *Service) stageAndOpen(ctx context.Context, req WriteRequest, branch string) (*gogithub.PullRequest, error) {
	sha := req.SHA
	if sha == "" {
		var err error
		if sha, err = s.currentSHA(ctx, req.Coordinate); err != nil {
			return nil, err
		}
	}
	staged := req.Coordinate
	staged.Ref = branch
	if _, err := s.up.PutFile(ctx, FileWrite{
		Coordinate: staged,
		Message:    req.Message,
		Content:    req.Content,
		SHA:        sha,
	}); err != nil {
		return nil, err
	}
	return s.up.OpenPullRequest(ctx, req.Owner, req.Repo, NewPullRequest{
		Title: req.Message,
		Body:  prBody(req),
		Head:  branch,
		Base:  req.Ref,
	})
}

// abandonBranch handles a PR flow that failed after its branch was created.
// The branch is kept unless cleanup is enabled; cleanup failures are only logged.
func (s *Service) abandonBranch(ctx context.Context, req WriteRequest, branch string, cause error) {
	if !s.opts.CleanupOrphanBranches {
		s.log.WarnContext(ctx, "pull request flow failed, branch left in place",
			"owner", req.Owner, "repo", req.Repo, "branch", branch, "error", cause)
		return
	}
	if err := s.up.DeleteBranch(context.WithoutCancel(ctx), req.Owner, req.Repo, branch); err != nil {
		s.log.WarnContext(ctx, "could not delete orphaned branch",
			"owner", req.Owner, "repo", req.Repo, "branch", branch, "error", err)
		return
	}
	s.log.InfoContext(ctx, "orphaned branch deleted", "owner", req.Owner, "repo", req.Repo, "branch", branch)
}

// currentSHA returns the file's sha, or "" if it does not exist yet.
func (s *Service) currentSHA(ctx context.Context, coord Coordinate) (string, error) {
	sha, err := s.up.FileSHA(ctx, coord)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return sha, err
}

func (s *Service) defaultMessage(path string) string {
	return fmt.Sprintf("%s: update %s (%s)", s.opts.CommitPrefix, path, s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// branchName is <prefix>-update-<yyyymmdd-hhmmss>-<suffix>.
func (s *Service) branchName() string {
	return fmt.Sprintf("%s-update-%s-%s", slug(s.opts.CommitPrefix), s.now().UTC().Format("20060102-150405"), s.suffix())
}

func prBody(req WriteRequest) string {
	admin := req.Admin
	if admin == "" {
		admin = "an unnamed admin"
	}
	return fmt.Sprintf("Update of `%s` requested from the admin tool by %s.", req.Path, admin)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// slug lower-cases s and replaces anything outside [a-z0-9] with '-'.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "admin"
	}
	return out
}
