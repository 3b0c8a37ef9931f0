// Package config reads the server configuration from the process environment.
//
//	GITHUB_TOKEN           token used for every GitHub API call (required)
//	GITHUB_API_URL         API base URL, for GitHub Enterprise or a mock server
//	ADMIN_API_KEY          canonical admin key, reported as admin "admin"
//	ADMIN_KEY_<NAME>       per-admin key, reported as admin "<name>"; each name
//	                       may be set once, so ADMIN_KEY_ADMIN and ADMIN_API_KEY
//	                       cannot be combined
//	DEFAULT_BRANCH         ref used when a request names none (default main)
//	COMMIT_MESSAGE_PREFIX  prefix of generated commit messages (default admin)
//	PR_CLEANUP_BRANCH      delete the staging branch when a PR flow fails
//	PORT                   listen port (default 8080)
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultBranch = "main"
	defaultPrefix = "admin"
	defaultPort   = "8080"

	canonicalAdmin    = "admin"
	adminKeyVar       = "ADMIN_API_KEY"
	adminKeyVarPrefix = "ADMIN_KEY_"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	GitHubToken           string
	GitHubAPIURL          string
	AdminKeys             map[string]string // admin name -> secret
	DefaultBranch         string
	CommitPrefix          string
	CleanupOrphanBranches bool
	Port                  string
}

// Load reads the configuration from os.Environ.
func Load() (*Config, error) {
	return FromEnviron(os.Environ())
}

// FromEnviron builds a Config from KEY=VALUE pairs.
func FromEnviron(environ []string) (*Config, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}

	cfg := &Config{
		GitHubToken:   env["GITHUB_TOKEN"],
		GitHubAPIURL:  strings.TrimSuffix(env["GITHUB_API_URL"], "/"),
		AdminKeys:     make(map[string]string),
		DefaultBranch: orDefault(env["DEFAULT_BRANCH"], defaultBranch),
		CommitPrefix:  orDefault(env["COMMIT_MESSAGE_PREFIX"], defaultPrefix),
		Port:          orDefault(env["PORT"], defaultPort),
	}

	if v := env["PR_CLEANUP_BRANCH"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PR_CLEANUP_BRANCH: %w", err)
		}
		cfg.CleanupOrphanBranches = b
	}

	// Variables differing only in case map to the same admin name.
	sources := make(map[string][]string)
	if v := env[adminKeyVar]; v != "" {
		cfg.AdminKeys[canonicalAdmin] = v
		sources[canonicalAdmin] = append(sources[canonicalAdmin], adminKeyVar)
	}
	for k, v := range env {
		name, ok := strings.CutPrefix(k, adminKeyVarPrefix)
		if !ok || name == "" || v == "" {
			continue
		}
		name = strings.ToLower(name)
		cfg.AdminKeys[name] = v
		sources[name] = append(sources[name], k)
	}

	if err := cfg.validate(sources); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks required settings. sources maps each admin name to the
// variables that set it; a name set twice would silently lose a secret.
func (c *Config) validate(sources map[string][]string) error {
	var errs []error
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if vars := sources[name]; len(vars) > 1 {
			sort.Strings(vars)
			errs = append(errs, fmt.Errorf("admin %q is set by more than one variable: %s", name, strings.Join(vars, ", ")))
		}
	}
	if c.GitHubToken == "" {
		errs = append(errs, errors.New("GITHUB_TOKEN not set"))
	}
	if len(c.AdminKeys) == 0 {
		errs = append(errs, fmt.Errorf("no admin key set (%s or %s<NAME>)", adminKeyVar, adminKeyVarPrefix))
	}
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
