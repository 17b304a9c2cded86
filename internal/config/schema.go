package config

import "siteflow/internal/site"

// ServiceConfig is the top-level YAML structure.
type ServiceConfig struct {
	Version string      `yaml:"version"`
	Engine  EngineConf  `yaml:"engine"`
	Sites   []site.Site `yaml:"sites"`
	Events  []EventDef  `yaml:"events"`
}

// EngineConf holds tunable dispatch and concurrency settings.
type EngineConf struct {
	EventWorkers   int  `yaml:"event_workers"`
	QueueDepth     int  `yaml:"queue_depth"`
	EventTimeoutMs int  `yaml:"event_timeout_ms"`
	MaxSteps       int  `yaml:"max_steps"`
	StopOnFailure  bool `yaml:"stop_on_failure"`
}

// EventDef binds one handler to an event type. Definition order in the file
// is the order handlers are loaded into a run.
type EventDef struct {
	Type    string         `yaml:"type"`
	Handler string         `yaml:"handler"`
	Params  map[string]any `yaml:"params"`
	When    string         `yaml:"when"` // optional guard expression
}
