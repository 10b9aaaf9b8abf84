package configuration

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rymeskar/identitymodel"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// such as "30m" or "12h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// RefreshSettings is the file-loadable refresh policy for a manager.
type RefreshSettings struct {
	AutomaticRefreshInterval Duration `yaml:"automatic_refresh_interval"`
	RefreshInterval          Duration `yaml:"refresh_interval"`
	LKGLifetime              Duration `yaml:"lkg_lifetime"`
	RequireHTTPS             *bool    `yaml:"require_https"`
}

// LoadRefreshSettings reads refresh policy from a YAML file. Absent fields
// are zero and ignored by Options.
func LoadRefreshSettings(path string) (*RefreshSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	var settings RefreshSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate rejects negative intervals. Sub-minimum values are legal here;
// the manager clamps them on apply.
func (s *RefreshSettings) Validate() error {
	if s.AutomaticRefreshInterval < 0 {
		return identitymodel.StructuralError("automatic_refresh_interval must not be negative")
	}
	if s.RefreshInterval < 0 {
		return identitymodel.StructuralError("refresh_interval must not be negative")
	}
	if s.LKGLifetime < 0 {
		return identitymodel.StructuralError("lkg_lifetime must not be negative")
	}
	return nil
}

// Options converts the settings into manager options, skipping unset fields.
func (s *RefreshSettings) Options() []Option {
	var opts []Option
	if s.AutomaticRefreshInterval > 0 {
		opts = append(opts, WithAutomaticRefreshInterval(time.Duration(s.AutomaticRefreshInterval)))
	}
	if s.RefreshInterval > 0 {
		opts = append(opts, WithRefreshInterval(time.Duration(s.RefreshInterval)))
	}
	return opts
}

// HTTPOptions converts the settings into document-retriever options, skipping
// unset fields.
func (s *RefreshSettings) HTTPOptions() []HTTPOption {
	var opts []HTTPOption
	if s.RequireHTTPS != nil {
		opts = append(opts, WithRequireHTTPS(*s.RequireHTTPS))
	}
	return opts
}
