package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnviron_defaults(t *testing.T) {
	cfg, err := FromEnviron([]string{"GITHUB_TOKEN=tk", "ADMIN_API_KEY=secret"})
	require.NoError(t, err)

	assert.Equal(t, "tk", cfg.GitHubToken)
	assert.Equal(t, "", cfg.GitHubAPIURL)
	assert.Equal(t, map[string]string{"admin": "secret"}, cfg.AdminKeys)
	assert.Equal(t, "main", cfg.DefaultBranch)
	assert.Equal(t, "admin", cfg.CommitPrefix)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.CleanupOrphanBranches)
}

func TestFromEnviron_perAdminKeys(t *testing.T) {
	cfg, err := FromEnviron([]string{
		"GITHUB_TOKEN=tk",
		"ADMIN_KEY_SIL=k1",
		"ADMIN_KEY_ARDA=k2",
		"ADMIN_KEY_EMPTY=",
		"ADMIN_KEY_=ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sil": "k1", "arda": "k2"}, cfg.AdminKeys)
}

func TestFromEnviron_overrides(t *testing.T) {
	cfg, err := FromEnviron([]string{
		"GITHUB_TOKEN=tk",
		"ADMIN_API_KEY=secret",
		"GITHUB_API_URL=http://localhost:9090/",
		"DEFAULT_BRANCH=develop",
		"COMMIT_MESSAGE_PREFIX=bySurf admin",
		"PR_CLEANUP_BRANCH=true",
		"PORT=3000",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9090", cfg.GitHubAPIURL)
	assert.Equal(t, "develop", cfg.DefaultBranch)
	assert.Equal(t, "bySurf admin", cfg.CommitPrefix)
	assert.True(t, cfg.CleanupOrphanBranches)
	assert.Equal(t, "3000", cfg.Port)
}

func TestFromEnviron_missingRequired(t *testing.T) {
	_, err := FromEnviron(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "ADMIN_API_KEY")
}

func TestFromEnviron_badBool(t *testing.T) {
	_, err := FromEnviron([]string{"GITHUB_TOKEN=tk", "ADMIN_API_KEY=k", "PR_CLEANUP_BRANCH=maybe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PR_CLEANUP_BRANCH")
}

func TestFromEnviron_adminNameSetTwice(t *testing.T) {
	_, err := FromEnviron([]string{"GITHUB_TOKEN=t", "ADMIN_API_KEY=canon", "ADMIN_KEY_ADMIN=other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `admin "admin"`)
	assert.Contains(t, err.Error(), "ADMIN_API_KEY, ADMIN_KEY_ADMIN")

	_, err = FromEnviron([]string{"GITHUB_TOKEN=t", "ADMIN_KEY_SIL=k1", "ADMIN_KEY_Sil=k2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `admin "sil"`)
}

func TestFromEnviron_adminKeyAdminAlone(t *testing.T) {
	cfg, err := FromEnviron([]string{"GITHUB_TOKEN=t", "ADMIN_KEY_ADMIN=other"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"admin": "other"}, cfg.AdminKeys)
}
