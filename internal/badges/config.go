package badges

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aioutlet/product-service/internal/config"
)

// DefaultRulesPath is the default location for the badge rules file. Hidden
// file format following common tool conventions.
const DefaultRulesPath = ".badge-rules.yaml"

// RulesPathEnvVar is the environment variable name for a custom rules path.
const RulesPathEnvVar = "BADGE_RULES_PATH"

// defaultSweepInterval is how often expired badges are swept when
// BADGE_SWEEP_INTERVAL is unset.
const defaultSweepInterval = time.Hour

// Config holds badge engine settings from the environment.
type Config struct {
	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration

	// RulesPath locates the optional YAML rule seed file.
	RulesPath string
}

// LoadConfigFromEnv reads badge settings from the environment.
func LoadConfigFromEnv() *Config {
	return &Config{
		SweepInterval: config.GetEnvDuration("BADGE_SWEEP_INTERVAL", defaultSweepInterval),
		RulesPath:     config.GetEnvStr(RulesPathEnvVar, DefaultRulesPath),
	}
}

// ruleSeedFile is the YAML document shape of the rules file.
type ruleSeedFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules loads badge rules from a YAML file at the given path.
//
// Behavior:
//   - Returns empty slice (not error) if file doesn't exist - rules are optional
//   - Returns empty slice + logs warning if YAML is invalid (graceful degradation)
//   - Returns an error if a rule parses but fails validation, so a typo'd
//     operator surfaces at startup instead of silently disabling automation
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - rule-driven badges are optional
			slog.Debug("Badge rules file not found, continuing without rules",
				slog.String("path", path))

			return nil, nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read badge rules file, continuing without rules",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return nil, nil
	}

	// Empty file is valid - just no rules
	if len(data) == 0 {
		return nil, nil
	}

	var seed ruleSeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		// Invalid YAML - log warning and continue without rules
		slog.Warn("Failed to parse badge rules file, continuing without rules",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return nil, nil
	}

	for i := range seed.Rules {
		if err := seed.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("badge rules file %s: %w", path, err)
		}
	}

	return seed.Rules, nil
}

// LoadRulesFromEnv loads rules from the path in BADGE_RULES_PATH, falling back
// to .badge-rules.yaml in the current directory.
func LoadRulesFromEnv() ([]Rule, error) {
	return LoadRules(config.GetEnvStr(RulesPathEnvVar, DefaultRulesPath))
}
