package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/shaun/gitrelay/internal/content"
)

const (
	defaultAPIURL = "https://api.github.com"
	acceptHeader  = "application/vnd.github+json"
	// defaultAccept is what go-github sends unless an endpoint asks for
	// another media type, such as raw blobs.
	defaultAccept = "application/vnd.github.v3+json"
)

// Client is the single path to the GitHub API. It implements content.Upstream.
type Client struct {
	gh *github.Client
}

// NewClient returns a client that authenticates every call with token.
// An empty baseURL targets the public API.
func NewClient(ctx context.Context, token, baseURL string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewClientWithHTTPClient(oauth2.NewClient(ctx, ts), baseURL)
}

// NewClientWithHTTPClient wraps hc, which is expected to carry the credentials.
func NewClientWithHTTPClient(hc *http.Client, baseURL string) (*Client, error) {
	wrapped := *hc
	wrapped.Transport = &acceptTransport{base: hc.Transport}
	gh := github.NewClient(&wrapped)
	if baseURL != "" && baseURL != defaultAPIURL {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse GitHub API URL: %w", err)
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh}, nil
}

// acceptTransport pins the JSON Accept header. Requests for a specific media
// type keep theirs.
type acceptTransport struct {
	base http.RoundTripper
}

func (t *acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if accept := req.Header.Get("Accept"); accept == "" || accept == defaultAccept {
		req = req.Clone(req.Context())
		req.Header.Set("Accept", acceptHeader)
	}
	return base.RoundTrip(req)
}

// GetFile fetches the file at coord and decodes its content. Files GitHub
// does not inline (encoding "none", over 1 MB) are read from the blob API.
func (c *Client) GetFile(ctx context.Context, coord content.Coordinate) (*content.Snapshot, error) {
	file, err := c.contents(ctx, coord)
	if err != nil {
		return nil, err
	}
	if file.GetEncoding() == "none" {
		raw, _, err := c.gh.Git.GetBlobRaw(ctx, coord.Owner, coord.Repo, file.GetSHA())
		if err != nil {
			return nil, normalize(err)
		}
		return &content.Snapshot{Content: string(raw), SHA: file.GetSHA()}, nil
	}
	text, err := decodeContent(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", coord.Path, err)
	}
	return &content.Snapshot{Content: text, SHA: file.GetSHA()}, nil
}

// FileSHA returns the blob sha of the file at coord. The content is never
// decoded, so it works for files of any size.
func (c *Client) FileSHA(ctx context.Context, coord content.Coordinate) (string, error) {
	file, err := c.contents(ctx, coord)
	if err != nil {
		return "", err
	}
	return file.GetSHA(), nil
}

func (c *Client) contents(ctx context.Context, coord content.Coordinate) (*github.RepositoryContent, error) {
	opts := &github.RepositoryContentGetOptions{Ref: coord.Ref}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, coord.Owner, coord.Repo, coord.Path, opts)
	if err != nil {
		return nil, normalize(err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s: %w", coord.Path, content.ErrNotAFile)
	}
	return file, nil
}

// decodeContent decodes the base64 content field. GitHub wraps it at 60
// columns; the decoder skips the newlines. A missing field is an empty file.
func decodeContent(file *github.RepositoryContent) (string, error) {
	if file.Content == nil {
		return "", nil
	}
	if enc := file.GetEncoding(); enc != "" && enc != "base64" {
		return "", fmt.Errorf("unsupported content encoding %q", enc)
	}
	b, err := base64.StdEncoding.DecodeString(*file.Content)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PutFile creates or updates a file. The sha is sent only when w.SHA is set.
// The commit object comes back as GitHub sent it.
func (c *Client) PutFile(ctx context.Context, w content.FileWrite) (*content.Commit, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(w.Message),
		Content: []byte(w.Content),
		Branch:  github.String(w.Ref),
	}
	if w.SHA != "" {
		opts.SHA = github.String(w.SHA)
	}
	req, err := c.gh.NewRequest(http.MethodPut, fmt.Sprintf("repos/%s/%s/contents/%s", w.Owner, w.Repo, w.Path), opts)
	if err != nil {
		return nil, err
	}
	var res struct {
		Commit json.RawMessage `json:"commit"`
	}
	if _, err := c.gh.Do(ctx, req, &res); err != nil {
		return nil, normalize(err)
	}
	var head struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(res.Commit, &head); err != nil {
		return nil, fmt.Errorf("decode commit for %s: %w", w.Path, err)
	}
	return &content.Commit{SHA: head.SHA, Raw: res.Commit}, nil
}

// BranchHead returns the commit sha the branch points at.
func (c *Client) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "refs/heads/"+branch)
	if err != nil {
		return "", normalize(err)
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates branch at sha.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	_, _, err := c.gh.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	return normalize(err)
}

// DeleteBranch removes branch.
func (c *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	_, err := c.gh.Git.DeleteRef(ctx, owner, repo, "refs/heads/"+branch)
	return normalize(err)
}

// OpenPullRequest opens pr and returns GitHub's view of it.
func (c *Client) OpenPullRequest(ctx context.Context, owner, repo string, pr content.NewPullRequest) (*github.PullRequest, error) {
	created, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Body:  github.String(pr.Body),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
	})
	if err != nil {
		return nil, normalize(err)
	}
	return created, nil
}

var _ content.Upstream = (*Client)(nil)
