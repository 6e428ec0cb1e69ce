package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// clearDSEnv убирает все переменные DS_* на время теста.
func clearDSEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] != '=' {
				continue
			}
			key := kv[:i]
			if len(key) > 3 && key[:3] == "DS_" {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			break
		}
	}
}

// minimalEnv — минимальный набор переменных для backend postgres + local.
func minimalEnv(t *testing.T) {
	t.Helper()
	clearDSEnv(t)
	t.Setenv("DS_DB_USER", "deckstore")
	t.Setenv("DS_DB_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	minimalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"postgres"}, cfg.RecordBackends)
	assert.Equal(t, ObjectBackendLocal, cfg.ObjectBackend)
	assert.Equal(t, int64(200*1024*1024), cfg.MaxUploadSize)
	assert.True(t, cfg.UploadRequireAuth)
	assert.Equal(t, model.DefaultExtensions, cfg.AllowedExtensions)
	assert.Equal(t, "decks", cfg.UploadPrefix)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "postgres", cfg.PrimaryRecordBackend())
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_RecordBackendsOrder(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_RECORD_BACKENDS", " Firestore, postgres ,")
	t.Setenv("DS_FIRESTORE_PROJECT_ID", "flashcards")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"firestore", "postgres"}, cfg.RecordBackends)
	assert.Equal(t, "firestore", cfg.PrimaryRecordBackend())
}

func TestLoad_DuplicateBackend(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_RECORD_BACKENDS", "postgres,postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DS_RECORD_BACKENDS")
}

func TestLoad_UnknownBackend(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_RECORD_BACKENDS", "supabase")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_PostgresRequiresCredentials(t *testing.T) {
	clearDSEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DS_DB_USER")
}

func TestLoad_ManifestOnly(t *testing.T) {
	clearDSEnv(t)
	t.Setenv("DS_RECORD_BACKENDS", "")
	t.Setenv("DS_MANIFEST_PATH", "site/decks.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.RecordBackends)
	assert.Equal(t, "", cfg.PrimaryRecordBackend())
}

func TestLoad_ExtensionsNormalized(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_ALLOWED_EXTENSIONS", "APKG, .Zip")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, model.Extensions{".apkg", ".zip"}, cfg.AllowedExtensions)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DS_LOG_LEVEL")
}

func TestLoad_InvalidObjectBackend(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_OBJECT_BACKEND", "ftp")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_OBJECT_BACKEND", "s3")
	t.Setenv("DS_S3_ENDPOINT", "minio:9000")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_NonPositiveUploadSize(t *testing.T) {
	minimalEnv(t)
	t.Setenv("DS_MAX_UPLOAD_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: 5433, DBName: "decks", DBSSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/decks?sslmode=require", cfg.DatabaseDSN())
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := parseLogLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = parseLogLevel("trace")
	assert.Error(t, err)
}
