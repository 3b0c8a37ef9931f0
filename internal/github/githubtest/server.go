// Package githubtest is an in-memory fake of the GitHub REST endpoints the
// relay uses: contents get/put, raw blobs, git refs and pull requests. It checks
// revision markers the way GitHub does, so stale writes come back as 409.
package githubtest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Token is the bearer token the fake accepts.
const Token = "test-token"

// Route names accepted by FailNext.
const (
	RouteGetContents = "get-contents"
	RouteGetBlob     = "get-blob"
	RoutePutContents = "put-contents"
	RouteGetRef      = "get-ref"
	RouteCreateRef   = "create-ref"
	RouteDeleteRef   = "delete-ref"
	RouteCreatePull  = "create-pull"
)

type file struct {
	content string
	sha     string
}

type branch struct {
	head  string
	files map[string]*file // path -> file; replaced, never mutated, on write
}

type repo struct {
	branches map[string]*branch
}

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	Accept string
	Body   []byte
}

// PullRequest is a pull request opened against the fake.
type PullRequest struct {
	Number int
	Title  string
	Body   string
	Head   string
	Base   string
}

type failure struct {
	status int
	body   string
}

// Server is the fake. Embeds the running httptest.Server.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	repos       map[string]*repo            // "owner/repo"
	commits     map[string]map[string]*file // commit sha -> tree at that commit
	blobs       map[string]string           // blob sha -> content
	inlineLimit int
	seq         int
	pulls    []PullRequest
	requests []Request
	failures map[string]failure
}

// NewServer starts a fake that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		repos:    make(map[string]*repo),
		commits:  make(map[string]map[string]*file),
		blobs:    make(map[string]string),
		failures: make(map[string]failure),
	}
	r := chi.NewRouter()
	r.Use(s.record, s.authenticate)
	r.Get("/repos/{owner}/{repo}/contents/*", s.getContents)
	r.Put("/repos/{owner}/{repo}/contents/*", s.putContents)
	r.Get("/repos/{owner}/{repo}/git/blobs/{sha}", s.getBlob)
	r.Get("/repos/{owner}/{repo}/git/ref/*", s.getRef)
	r.Post("/repos/{owner}/{repo}/git/refs", s.createRef)
	r.Delete("/repos/{owner}/{repo}/git/refs/*", s.deleteRef)
	r.Post("/repos/{owner}/{repo}/pulls", s.createPull)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// CreateBranch creates an empty branch if it does not exist.
func (s *Server) CreateBranch(owner, repoName, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureBranch(owner, repoName, name)
}

// SetFile writes content on the branch, creating it if needed, and returns the
// file's blob sha.
func (s *Server) SetFile(owner, repoName, branchName, filePath, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.ensureBranch(owner, repoName, branchName)
	f := s.commitFile(b, filePath, content, "seed "+filePath)
	return f.sha
}

// File returns the content and sha of a file, if present.
func (s *Server) File(owner, repoName, branchName, filePath string) (content, sha string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.branch(owner, repoName, branchName)
	if b == nil {
		return "", "", false
	}
	f, ok := b.files[filePath]
	if !ok {
		return "", "", false
	}
	return f.content, f.sha, true
}

// Branches lists the branches of a repo in name order.
func (s *Server) Branches(owner, repoName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repos[owner+"/"+repoName]
	if rp == nil {
		return nil
	}
	names := make([]string, 0, len(rp.branches))
	for name := range rp.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PullRequests returns every pull request opened so far.
func (s *Server) PullRequests() []PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PullRequest, len(s.pulls))
	copy(out, s.pulls)
	return out
}

// Requests returns every request received, including rejected ones.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls is len(Requests()).
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// SetInlineLimit makes the contents API omit the content of files larger
// than n bytes and report encoding "none", as GitHub does above 1 MB.
// Zero inlines everything.
func (s *Server) SetInlineLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inlineLimit = n
}

// FailNext makes the next request to route answer with status and body.
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Accept: r.Header.Get("Accept"), Body: body})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeMessage(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// failed answers with an injected failure for route, if one is pending.
func (s *Server) failed(w http.ResponseWriter, route string) bool {
	s.mu.Lock()
	f, ok := s.failures[route]
	delete(s.failures, route)
	s.mu.Unlock()
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	io.WriteString(w, f.body)
	return true
}

func (s *Server) getContents(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RouteGetContents) {
		return
	}
	filePath := chi.URLParam(r, "*")
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		ref = "main"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.branch(chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), ref)
	if b == nil {
		writeMessage(w, http.StatusNotFound, "No commit found for the ref "+ref)
		return
	}
	if f, ok := b.files[filePath]; ok {
		encoding, encoded := "base64", wrap(base64.StdEncoding.EncodeToString([]byte(f.content)), 60)
		if s.inlineLimit > 0 && len(f.content) > s.inlineLimit {
			encoding, encoded = "none", ""
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"encoding": encoding,
			"size":     len(f.content),
			"name":     path.Base(filePath),
			"path":     filePath,
			"sha":      f.sha,
			"content":  encoded,
		})
		return
	}
	var entries []map[string]any
	for p, f := range b.files {
		if rest, ok := strings.CutPrefix(p, filePath+"/"); ok && !strings.Contains(rest, "/") {
			entries = append(entries, map[string]any{"type": "file", "name": rest, "path": p, "sha": f.sha})
		}
	}
	if len(entries) > 0 {
		writeJSON(w, http.StatusOK, entries)
		return
	}
	writeMessage(w, http.StatusNotFound, "Not Found")
}

// getBlob serves raw bytes when asked for the raw media type, JSON otherwise.
func (s *Server) getBlob(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RouteGetBlob) {
		return
	}
	sha := chi.URLParam(r, "sha")
	s.mu.Lock()
	data, ok := s.blobs[sha]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	if strings.HasSuffix(r.Header.Get("Accept"), ".raw") {
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, data)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sha":      sha,
		"size":     len(data),
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte(data)),
	})
}

func (s *Server) putContents(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RoutePutContents) {
		return
	}
	var req struct {
		Message string  `json:"message"`
		Content string  `json:"content"`
		SHA     *string `json:"sha"`
		Branch  string  `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}
	filePath := chi.URLParam(r, "*")

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.branch(chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), req.Branch)
	if b == nil {
		writeMessage(w, http.StatusNotFound, "Branch "+req.Branch+" not found")
		return
	}
	existing, exists := b.files[filePath]
	switch {
	case exists && (req.SHA == nil || *req.SHA == ""):
		writeMessage(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
		return
	case exists && *req.SHA != existing.sha:
		writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", filePath, *req.SHA))
		return
	}

	parent := b.head
	f := s.commitFile(b, filePath, string(decoded), req.Message)
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"content": map[string]any{"type": "file", "name": path.Base(filePath), "path": filePath, "sha": f.sha},
		"commit": map[string]any{
			"sha":      b.head,
			"message":  req.Message,
			"html_url": fmt.Sprintf("https://github.com/%s/%s/commit/%s", chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), b.head),
			"parents":  []map[string]any{{"sha": parent}},
		},
	})
}

func (s *Server) getRef(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RouteGetRef) {
		return
	}
	name, ok := strings.CutPrefix(chi.URLParam(r, "*"), "heads/")
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.branch(chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), name)
	if !ok || b == nil {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, refJSON(name, b.head))
}

func (s *Server) createRef(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RouteCreateRef) {
		return
	}
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	name, ok := strings.CutPrefix(req.Ref, "refs/heads/")
	if !ok || name == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "Reference name must start with 'refs/heads/'")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repos[chi.URLParam(r, "owner")+"/"+chi.URLParam(r, "repo")]
	tree, known := s.commits[req.SHA]
	switch {
	case rp == nil:
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	case rp.branches[name] != nil:
		writeMessage(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	case !known:
		writeMessage(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	rp.branches[name] = &branch{head: req.SHA, files: tree}
	writeJSON(w, http.StatusCreated, refJSON(name, req.SHA))
}

func (s *Server) deleteRef(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RouteDeleteRef) {
		return
	}
	name, _ := strings.CutPrefix(chi.URLParam(r, "*"), "heads/")
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repos[chi.URLParam(r, "owner")+"/"+chi.URLParam(r, "repo")]
	if rp == nil || rp.branches[name] == nil {
		writeMessage(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	}
	delete(rp.branches, name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createPull(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, RouteCreatePull) {
		return
	}
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Head  string `json:"head"`
		Base  string `json:"base"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	owner, repoName := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.branch(owner, repoName, req.Head) == nil || s.branch(owner, repoName, req.Base) == nil {
		writeMessage(w, http.StatusUnprocessableEntity, "Validation Failed")
		return
	}
	pr := PullRequest{Number: len(s.pulls) + 1, Title: req.Title, Body: req.Body, Head: req.Head, Base: req.Base}
	s.pulls = append(s.pulls, pr)
	writeJSON(w, http.StatusCreated, map[string]any{
		"number":   pr.Number,
		"state":    "open",
		"title":    pr.Title,
		"body":     pr.Body,
		"html_url": fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repoName, pr.Number),
		"head":     map[string]any{"ref": pr.Head},
		"base":     map[string]any{"ref": pr.Base},
	})
}

// Callers of the helpers below hold s.mu.

func (s *Server) branch(owner, repoName, name string) *branch {
	rp := s.repos[owner+"/"+repoName]
	if rp == nil {
		return nil
	}
	return rp.branches[name]
}

func (s *Server) ensureBranch(owner, repoName, name string) *branch {
	key := owner + "/" + repoName
	rp := s.repos[key]
	if rp == nil {
		rp = &repo{branches: make(map[string]*branch)}
		s.repos[key] = rp
	}
	b := rp.branches[name]
	if b == nil {
		b = &branch{files: map[string]*file{}}
		b.head = s.newCommit(b.files, "", "initial commit")
		rp.branches[name] = b
	}
	return b
}

// commitFile writes one file onto b as a new commit and moves b's head.
func (s *Server) commitFile(b *branch, filePath, content, message string) *file {
	f := &file{content: content, sha: BlobSHA(content)}
	s.blobs[f.sha] = content
	files := make(map[string]*file, len(b.files)+1)
	for p, existing := range b.files {
		files[p] = existing
	}
	files[filePath] = f
	b.files = files
	b.head = s.newCommit(files, b.head, message)
	return f
}

func (s *Server) newCommit(files map[string]*file, parent, message string) string {
	s.seq++
	sha := objectSHA("commit", fmt.Sprintf("parent %s\nseq %d\n\n%s", parent, s.seq, message))
	s.commits[sha] = files
	return sha
}

func refJSON(name, sha string) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + name,
		"object": map[string]any{"type": "commit", "sha": sha},
	}
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"message":           msg,
		"documentation_url": "https://docs.github.com/rest",
	})
}
