package config

import (
	"strings"
	"testing"

	"siteflow/internal/site"
)

func validConfig() *ServiceConfig {
	return &ServiceConfig{
		Version: "v1",
		Sites: []site.Site{
			{ID: "s1", Name: "One", Host: "one.example.com", Env: "production"},
		},
		Events: []EventDef{
			{Type: "site.created", Handler: "provision", Params: map[string]any{"step": "fs"}},
			{Type: "site.created", Handler: "dns", When: `site.env == "production"`},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ServiceConfig)
		want   string
	}{
		{
			name:   "missing version",
			mutate: func(c *ServiceConfig) { c.Version = "" },
			want:   "version is required",
		},
		{
			name: "duplicate site id",
			mutate: func(c *ServiceConfig) {
				c.Sites = append(c.Sites, site.Site{ID: "s1", Host: "two.example.com"})
			},
			want: `duplicate site id "s1"`,
		},
		{
			name:   "site missing host",
			mutate: func(c *ServiceConfig) { c.Sites[0].Host = "" },
			want:   "host is required",
		},
		{
			name:   "event missing type",
			mutate: func(c *ServiceConfig) { c.Events[0].Type = "" },
			want:   "type is required",
		},
		{
			name:   "event missing handler",
			mutate: func(c *ServiceConfig) { c.Events[0].Handler = "" },
			want:   "handler is required",
		},
		{
			name:   "bad guard",
			mutate: func(c *ServiceConfig) { c.Events[1].When = "env ==" },
			want:   "guard",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}
