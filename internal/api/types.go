package api

import (
	"encoding/json"

	"github.com/google/go-github/v66/github"
)

type PullBody struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Path  string `json:"path"`
	Ref   string `json:"ref"`
}

type PullResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type PushBody struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Path    string `json:"path"`
	Branch  string `json:"branch"`
	Message string `json:"message"`
	Content string `json:"content"`
	PRMode  bool   `json:"prMode"`
	// SHA is the revision the caller last pulled. Optional in both modes.
	SHA string `json:"sha"`
}

type PushResponse struct {
	OK     bool                `json:"ok"`
	Commit json.RawMessage     `json:"commit,omitempty"`
	PR     *github.PullRequest `json:"pr,omitempty"`
	Branch string              `json:"branch,omitempty"`
}
