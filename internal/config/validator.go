package config

import (
	"fmt"
	"strings"

	"siteflow/internal/guard"
)

// Validate checks the config for:
//   - Required top-level fields
//   - Duplicate site IDs
//   - Event definitions missing type or handler
//   - Guard expressions that do not parse
//
// Handler names are checked later, when the registry snapshot is built
// against the factory table.
func Validate(cfg *ServiceConfig) error {
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}

	siteIDs := make(map[string]int)
	for i, s := range cfg.Sites {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("sites[%d]: id is required", i))
			continue
		}
		if prev, ok := siteIDs[s.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate site id %q (sites[%d] and sites[%d])", s.ID, prev, i))
		} else {
			siteIDs[s.ID] = i
		}
		if s.Host == "" {
			errs = append(errs, fmt.Sprintf("site %s: host is required", s.ID))
		}
	}

	for i, e := range cfg.Events {
		loc := fmt.Sprintf("events[%d]", i)
		if e.Type == "" {
			errs = append(errs, loc+": type is required")
		}
		if e.Handler == "" {
			errs = append(errs, loc+": handler is required")
		}
		if e.When != "" {
			if _, err := guard.Parse(e.When); err != nil {
				errs = append(errs, fmt.Sprintf("%s (handler %q): %v", loc, e.Handler, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
