// Package mcpcfg loads declarative MCP server definitions from YAML or JSON
// configuration files.
package mcpcfg

import (
	"os"
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

// ErrInvalidConfig is returned for any configuration that fails validation:
// missing required fields, duplicate server names, or unparsable documents.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerDefinition describes a single MCP server to launch over stdio.
type ServerDefinition struct {
	// Name identifies the server and prefixes every capability it exposes.
	Name string `json:"name" yaml:"name" validate:"required"`
	// Command is the executable to spawn.
	Command string `json:"command" yaml:"command" validate:"required"`
	// Args are passed to the command verbatim, after placeholder expansion.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env is merged into the inherited process environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Config is the root of a server configuration document.
type Config struct {
	MCPServers []*ServerDefinition `json:"mcp_servers" yaml:"mcp_servers" validate:"required,min=1,dive,required"`
}

var cfgValidator = validator.New()

// placeholders of the form ${VAR} are resolved from the process environment.
var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads and validates a server configuration from file.
// The file may be YAML or JSON.
func LoadConfig(file string) (*Config, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessagef(ErrInvalidConfig, "unable to read configuration file: %s", file)
	}
	return ParseConfig(raw)
}

// ParseConfig parses and validates a configuration document.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.WithMessagef(ErrInvalidConfig, "unable to parse configuration: %s", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.expandPlaceholders()
	return &cfg, nil
}

// Validate checks required fields and rejects duplicate server names.
func (c *Config) Validate() error {
	if err := cfgValidator.Struct(c); err != nil {
		return errors.WithMessagef(ErrInvalidConfig, "%s", err.Error())
	}
	seen := make(map[string]bool, len(c.MCPServers))
	for _, def := range c.MCPServers {
		if seen[def.Name] {
			return errors.WithMessagef(ErrInvalidConfig, "duplicate server name: %q", def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}

// expandPlaceholders substitutes ${VAR} references in args and env values
// from the process environment. Unset variables expand to an empty string.
func (c *Config) expandPlaceholders() {
	for _, def := range c.MCPServers {
		for i, arg := range def.Args {
			def.Args[i] = expand(arg)
		}
		for k, v := range def.Env {
			def.Env[k] = expand(v)
		}
	}
}

func expand(s string) string {
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}
