package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shaun/gitrelay/internal/auth"
	"github.com/shaun/gitrelay/internal/content"
	"github.com/shaun/gitrelay/internal/github"
)

const maxBodyBytes = 5 << 20

// ContentService reads and writes files. Implemented by *content.Service.
type ContentService interface {
	Pull(ctx context.Context, coord content.Coordinate) (*content.Snapshot, error)
	Push(ctx context.Context, req content.WriteRequest) (*content.WriteResult, error)
}

type Handler struct {
	svc ContentService
	log *slog.Logger
}

func NewHandler(svc ContentService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) Pull(w http.ResponseWriter, r *http.Request) {
	var body PullBody
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(w, r, err, "")
		return
	}
	snap, err := h.svc.Pull(r.Context(), content.Coordinate{
		Owner: body.Owner,
		Repo:  body.Repo,
		Path:  body.Path,
		Ref:   body.Ref,
	})
	if errors.Is(err, content.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, r, err, "Missing owner/repo/path")
		return
	}
	respondJSON(w, http.StatusOK, PullResponse{Content: snap.Content, SHA: snap.SHA})
}

func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	var body PushBody
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(w, r, err, "")
		return
	}
	res, err := h.svc.Push(r.Context(), content.WriteRequest{
		Coordinate: content.Coordinate{
			Owner: body.Owner,
			Repo:  body.Repo,
			Path:  body.Path,
			Ref:   body.Branch,
		},
		Message: body.Message,
		Content: body.Content,
		PRMode:  body.PRMode,
		SHA:     body.SHA,
		Admin:   auth.AdminFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err, "Missing owner/repo/path/content")
		return
	}
	out := PushResponse{OK: true, PR: res.PullRequest, Branch: res.Branch}
	if res.Commit != nil {
		out.Commit = res.Commit.Raw
	}
	respondJSON(w, http.StatusOK, out)
}

// decodeBody reads a JSON body. An empty body decodes as {}.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// fail maps err to a response. GitHub failures are forwarded with their own
// status and body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, invalidMsg string) {
	var (
		upErr  *github.UpstreamError
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, content.ErrInvalidRequest):
		http.Error(w, invalidMsg, http.StatusBadRequest)
	case errors.As(err, &upErr):
		h.log.WarnContext(r.Context(), "github request failed", "status", upErr.StatusCode, "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(upErr.StatusCode)
		io.WriteString(w, upErr.Body)
	case errors.Is(err, content.ErrNotAFile):
		http.Error(w, "Path is not a file", http.StatusBadRequest)
	case errors.As(err, &maxErr):
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
	default:
		h.log.ErrorContext(r.Context(), "request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
