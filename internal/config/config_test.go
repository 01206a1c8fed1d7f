package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		expectErr bool
		check     func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{"DATABASE_URL": "postgres://localhost/teamsaas"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, ":8080", cfg.Addr)
				assert.Equal(t, 168*time.Hour, cfg.Auth.TokenTTL)
				assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
				assert.Equal(t, "teamsaas", cfg.NATS.SubjectPrefix)
				assert.False(t, cfg.Stripe.Enabled())
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"DATABASE_URL":            "postgres://localhost/teamsaas",
				"ADDR":                    ":9090",
				"JWT_TTL":                 "1h",
				"STRIPE_SECRET_KEY":       "sk_test_123",
				"STRIPE_FALLBACK_USER_ID": "5b0e2bb6-4c3b-4a7e-9a8e-3d7f7f0c1a11",
				"CORS_ALLOWED_ORIGINS":    "https://a.example,https://b.example",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, ":9090", cfg.Addr)
				assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
				assert.True(t, cfg.Stripe.Enabled())
				assert.Equal(t, "5b0e2bb6-4c3b-4a7e-9a8e-3d7f7f0c1a11", cfg.Stripe.FallbackUserID)
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
			},
		},
		{
			name:      "missing database url",
			env:       map[string]string{},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(tt.env))
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
