package config_test

import (
	"os"
	"testing"

	"github.com/invoiceflow/invoiceflow-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("extraction-service")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	// OCR routing defaults
	assert.Greater(t, cfg.OCR.BrightnessMax, cfg.OCR.BrightnessMin)
	assert.Positive(t, cfg.OCR.SharpnessMin)
	assert.Positive(t, cfg.OCR.MinTextLength)
	assert.Equal(t, []string{"eng"}, cfg.OCR.TesseractLanguages)

	assert.Positive(t, cfg.Synthesis.MaxRetries)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	os.Setenv("INVOICEFLOW_OCR_MIN_TEXT_LENGTH", "128")
	os.Setenv("INVOICEFLOW_SERVER_PORT", "9090")
	defer os.Unsetenv("INVOICEFLOW_OCR_MIN_TEXT_LENGTH")
	defer os.Unsetenv("INVOICEFLOW_SERVER_PORT")

	cfg, err := config.Load("extraction-service")
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.OCR.MinTextLength)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("from individual fields", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Host:     "db.internal",
			Port:     5433,
			User:     "svc",
			Password: "secret",
			Database: "invoices",
			SSLMode:  "require",
		}
		assert.Equal(t,
			"host=db.internal port=5433 user=svc password=secret dbname=invoices sslmode=require",
			cfg.DSN())
	})

	t.Run("URL takes precedence", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			URL:  "postgres://u:p@remote:5432/db?sslmode=verify-full",
			Host: "ignored",
		}
		assert.Contains(t, cfg.DSN(), "host=remote")
		assert.Contains(t, cfg.DSN(), "sslmode=verify-full")
	})
}

func TestDatabaseConfig_Validate(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "localhost"}

	assert.NoError(t, cfg.Validate(config.EnvDevelopment))
	assert.Error(t, cfg.Validate(config.EnvProduction))

	cfg.Host = "db.prod.internal"
	assert.NoError(t, cfg.Validate(config.EnvProduction))
}
