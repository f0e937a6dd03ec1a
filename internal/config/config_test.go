package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crmimport/internal/dedup"
	pipelineerrors "crmimport/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDBURI, cfg.DBURI)
	assert.Equal(t, DefaultCollection, cfg.Collection)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Empty(t, cfg.Endpoint)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, dedup.IncumbentWinsTie, cfg.DedupTie)
}

func TestLoadDedupTie(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("IMPORT_DEDUP_TIE", "challenger")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dedup.ChallengerWinsTie, cfg.DedupTie)

	t.Setenv("IMPORT_DEDUP_TIE", "newest")
	_, err = Load("")
	assert.ErrorIs(t, err, pipelineerrors.ErrInvalidInput)
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_CORS_ORIGINS", "https://crm.example.com, https://admin.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://crm.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte("db_name: fromfile\nimport_chunk_size: 25\n"), 0o644))
	t.Setenv("DB_NAME", "fromenv")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.DBName)
	assert.Equal(t, 25, cfg.ChunkSize)
	assert.Equal(t, file, cfg.ConfigFile)
}

func TestLoadRejectsChunkSize(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("IMPORT_CHUNK_SIZE", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipelineerrors.ErrInvalidInput))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test,
// matching testing.T.Chdir on toolchains that predate it.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
