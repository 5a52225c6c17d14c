package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/nodeflow/pkg/script"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

var validate = validator.New()

// Settings is the nodeflow CLI configuration.
type Settings struct {
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	Engine    EngineSettings   `yaml:"engine" json:"engine"`
	Script    ScriptSettings   `yaml:"script" json:"script"`
	Store     StoreSettings    `yaml:"store" json:"store"`
	Policy    PolicySettings   `yaml:"policy" json:"policy"`
}

// EngineSettings configures engines built by the CLI.
type EngineSettings struct {
	// AllowMismatch accepts type-incompatible connections instead of refusing them.
	AllowMismatch bool `yaml:"allowMismatch" json:"allowMismatch"`
}

// ScriptSettings bounds Expression nodes.
type ScriptSettings struct {
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	MaxSteps uint64        `yaml:"maxSteps" json:"maxSteps"`
}

// StoreSettings configures the snapshot store.
type StoreSettings struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path" json:"path" validate:"required"`
}

// PolicySettings configures document linting.
type PolicySettings struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Paths are extra .rego files or directories loaded next to the built-in rules.
	Paths []string `yaml:"paths" json:"paths" validate:"dive,required"`

	// Mode is advisory (report only) or enforcing (fail on violations).
	Mode string `yaml:"mode" json:"mode" validate:"oneof=advisory enforcing"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	return &Settings{
		Telemetry: *telemetry.DefaultConfig(),
		Script: ScriptSettings{
			Timeout:  script.DefaultTimeout,
			MaxSteps: script.DefaultMaxSteps,
		},
		Store: StoreSettings{Path: "nodeflow.db"},
		Policy: PolicySettings{
			Enabled: true,
			Mode:    "advisory",
		},
	}
}

// Validate checks the settings and the embedded telemetry configuration.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Evaluator builds the Expression sandbox described by the script settings.
func (s *Settings) Evaluator() *script.Evaluator {
	return script.NewEvaluator(s.Script.Timeout, s.Script.MaxSteps)
}
