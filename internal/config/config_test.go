package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.QuickMatch.RequestTTL)
	assert.Equal(t, 20, cfg.QuickMatch.CandidateLimit)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.Storage.UseS3())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero ttl", func(c *Config) { c.QuickMatch.RequestTTL = 0 }},
		{"zero candidate limit", func(c *Config) { c.QuickMatch.CandidateLimit = 0 }},
		{"negative sweep interval", func(c *Config) { c.QuickMatch.SweepInterval = -time.Second }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unknown limiter storage", func(c *Config) { c.RateLimit.Storage = "disk" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			cfg, err := Load()
			require.NoError(t, err)

			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConnectionString(t *testing.T) {
	d := DatabaseOptions{Host: "db", Port: "5433", User: "u", Password: "p", Name: "qm"}
	assert.Equal(t, "host=db user=u password=p dbname=qm port=5433 sslmode=disable", d.ConnectionString())
}
