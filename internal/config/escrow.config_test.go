package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8030", cfg.HTTPAddr)
	assert.Equal(t, ":8031", cfg.GRPCAddr)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, "GHS", cfg.PlatformCurrency)
	assert.Equal(t, int64(500), cfg.FeeBasisPoints)
	assert.Equal(t, "platform", cfg.PlatformOwnerID)
	assert.Equal(t, "*/15 * * * *", cfg.ReconcileCron)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "postgres://postgres:pw@db:5432/escrow?sslmode=disable", cfg.DB.URL())
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"no jwt":         {},
		"bad driver":     {"JWT_SECRET": "x", "STORE_DRIVER": "sqlite"},
		"fee too high":   {"JWT_SECRET": "x", "FEE_BASIS_POINTS": "10001"},
		"bad currency":   {"JWT_SECRET": "x", "PLATFORM_CURRENCY": "CEDI"},
		"bad duration":   {"JWT_SECRET": "x", "LOCK_TIMEOUT": "soon"},
		"zero lock wait": {"JWT_SECRET": "x", "LOCK_TIMEOUT": "0s"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := ConnectRedis(context.Background(), AppConfig{RedisAddr: mr.Addr()}, zap.NewNop())
	require.NotNil(t, rdb)
	_ = rdb.Close()

	mr.Close()
	assert.Nil(t, ConnectRedis(context.Background(), AppConfig{RedisAddr: mr.Addr()}, zap.NewNop()))
}
