package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "clip",
		Password: "secret",
		Database: "jobs_db",
		SSLMode:  "require",
	}
	assert.Equal(t, "host=db.internal port=5433 user=clip password=secret dbname=jobs_db sslmode=require", cfg.DSN())

	cfg.SSLMode = ""
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
}
