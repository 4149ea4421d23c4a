package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PIPELINE_BACKEND_TIMEOUT", "")
	t.Setenv("CACHE_REFRESH_INTERVAL", "")
	t.Setenv("MAIL_PORT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)
	assert.Equal(t, time.Minute, cfg.CacheRefreshInterval)
	assert.Equal(t, 587, cfg.MailPort)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("PIPELINE_BACKEND_TIMEOUT", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.io, https://b.io ,")
	t.Setenv("KOMMO_STATUS_CLOSED", "142")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.BackendTimeout)
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 142, cfg.KommoStatusIDs[entity.StatusClosed])
	assert.NotContains(t, cfg.KommoStatusIDs, entity.StatusOpen)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")

	t.Setenv("PIPELINE_BACKEND_TIMEOUT", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "PIPELINE_BACKEND_TIMEOUT")

	t.Setenv("PIPELINE_BACKEND_TIMEOUT", "")
	t.Setenv("MAIL_PORT", "smtp")
	_, err = Load()
	assert.ErrorContains(t, err, "MAIL_PORT")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()

	assert.Error(t, err)
}
