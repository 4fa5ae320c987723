package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxPageSize = 1000

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}

	if strings.TrimSpace(c.Cache.Path) == "" {
		return fmt.Errorf("cache.path is required")
	}

	if err := c.Sync.validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	return nil
}

func (s *SyncConfig) validate() error {
	if s.PageSize < 1 || s.PageSize > maxPageSize {
		return fmt.Errorf("page_size must be in 1..%d (got %d)", maxPageSize, s.PageSize)
	}

	raw := strings.TrimSpace(s.UserIDRaw)
	if raw == "" {
		s.UserID = uuid.Nil
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	s.UserID = id
	return nil
}
