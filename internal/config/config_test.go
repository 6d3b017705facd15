package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 5*time.Minute, cfg.PermissionCacheTTL)
	assert.Equal(t, "user", cfg.DefaultRole)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, MailLog, cfg.MailDriver)
	assert.Contains(t, cfg.DatabaseURL, "postgres://postgres:postgres@db:5432/postgres")
	assert.False(t, cfg.IsRelease())
}

func TestFromEnv_TTLWithDays(t *testing.T) {
	t.Setenv("JWT_REFRESH_TTL", "30d")
	t.Setenv("JWT_ACCESS_TTL", "900")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
}

func TestFromEnv_PermissionCacheCanBeDisabled(t *testing.T) {
	t.Setenv("PERMISSION_CACHE_TTL", "0")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Zero(t, cfg.PermissionCacheTTL)
}

func TestFromEnv_ReleaseRefusesDefaultSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET")

	t.Setenv("JWT_ACCESS_SECRET", "a-real-access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "a-real-refresh-secret")
	t.Setenv("OTP_SECRET", "a-real-otp-secret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsRelease())
}

func TestFromEnv_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"low bcrypt cost":   {"BCRYPT_COST": "4"},
		"same secrets":      {"JWT_ACCESS_SECRET": "x", "JWT_REFRESH_SECRET": "x"},
		"bad store":         {"STORE_DRIVER": "etcd"},
		"smtp without host": {"MAIL_DRIVER": "smtp", "SMTP_HOST": ""},
		"bad ttl":           {"JWT_ACCESS_TTL": "soon"},
		"bad rate":          {"AUTH_RATE_PER_SECOND": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
