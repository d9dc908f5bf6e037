package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "KWHMEDIO_LOG_LEVEL", "KWHMEDIO_API_BASE_URL", "KWHMEDIO_HTTP_TIMEOUT",
		"KWHMEDIO_PAGE_SIZE", "KWHMEDIO_DB_DRIVER", "KWHMEDIO_DB_DSN",
		"KWHMEDIO_AUTO_MIGRATE", "KWHMEDIO_WARM_SCHEDULE",
	} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	if cfg.Port != "8000" {
		t.Errorf("unexpected port: %q", cfg.Port)
	}
	if cfg.PageSize != 100 {
		t.Errorf("unexpected page size: %d", cfg.PageSize)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("unexpected timeout: %s", cfg.HTTPTimeout)
	}
	if cfg.DBDriver != "" {
		t.Errorf("expected no cache driver by default, got %q", cfg.DBDriver)
	}
	if cfg.AutoMigrate {
		t.Errorf("expected auto migrate off by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("KWHMEDIO_HTTP_TIMEOUT", "15")
	t.Setenv("KWHMEDIO_PAGE_SIZE", "50")
	t.Setenv("KWHMEDIO_DB_DRIVER", "sqlite")
	t.Setenv("KWHMEDIO_AUTO_MIGRATE", "YES")

	cfg := FromEnv()
	if cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("expected integer seconds to parse, got %s", cfg.HTTPTimeout)
	}
	if cfg.PageSize != 50 {
		t.Errorf("unexpected page size: %d", cfg.PageSize)
	}
	if cfg.DBDriver != "sqlite" || !cfg.AutoMigrate {
		t.Errorf("unexpected storage config: %+v", cfg)
	}

	t.Setenv("KWHMEDIO_HTTP_TIMEOUT", "2m")
	t.Setenv("KWHMEDIO_PAGE_SIZE", "-3")
	cfg = FromEnv()
	if cfg.HTTPTimeout != 2*time.Minute {
		t.Errorf("expected go duration to parse, got %s", cfg.HTTPTimeout)
	}
	if cfg.PageSize != 100 {
		t.Errorf("expected invalid page size to fall back, got %d", cfg.PageSize)
	}
}
