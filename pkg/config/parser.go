package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// yamlConfig mirrors the serverless.yml structure before conversion to the
// domain Config.
type yamlConfig struct {
	Project     string         `yaml:"project"`
	Provider    string         `yaml:"provider"`
	Concurrency int            `yaml:"concurrency,omitempty"`
	EnvFile     string         `yaml:"env_file,omitempty"`
	Functions   []yamlFunction `yaml:"functions"`
	Hooks       *yamlHooks     `yaml:"hooks,omitempty"`
	Retry       *yamlRetry     `yaml:"retry,omitempty"`
}

type yamlFunction struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Handler string `yaml:"handler,omitempty"`
	Runtime string `yaml:"runtime,omitempty"`
	Memory  int    `yaml:"memory"`
	Timeout int    `yaml:"timeout"`
	EnvFile string `yaml:"env_file,omitempty"`
}

type yamlHooks struct {
	BeforeDeploy []yamlHook `yaml:"before_deploy,omitempty"`
	AfterDeploy  []yamlHook `yaml:"after_deploy,omitempty"`
}

type yamlHook struct {
	Run  string `yaml:"run"`
	When string `yaml:"when,omitempty"`
}

type yamlRetry struct {
	MaxAttempts    int `yaml:"max_attempts,omitempty"`
	InitialDelayMS int `yaml:"initial_delay_ms,omitempty"`
	MaxDelayMS     int `yaml:"max_delay_ms,omitempty"`
}

// Parse parses a configuration from YAML bytes and validates it.
func Parse(yamlBytes []byte) (*Config, error) {
	if len(yamlBytes) == 0 {
		return nil, errors.New("empty YAML input")
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(yamlBytes, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{
		Project:     yc.Project,
		Provider:    types.Provider(yc.Provider),
		Concurrency: yc.Concurrency,
		EnvFile:     yc.EnvFile,
		Functions:   make([]FunctionSpec, 0, len(yc.Functions)),
		Retry:       Retry{},
	}

	for _, yf := range yc.Functions {
		cfg.Functions = append(cfg.Functions, FunctionSpec{
			Name:    yf.Name,
			Path:    yf.Path,
			Handler: yf.Handler,
			Runtime: yf.Runtime,
			Memory:  yf.Memory,
			Timeout: yf.Timeout,
			EnvFile: yf.EnvFile,
		})
	}

	if yc.Hooks != nil {
		for _, yh := range yc.Hooks.BeforeDeploy {
			cfg.Hooks.BeforeDeploy = append(cfg.Hooks.BeforeDeploy, HookSpec{Run: yh.Run, When: yh.When})
		}
		for _, yh := range yc.Hooks.AfterDeploy {
			cfg.Hooks.AfterDeploy = append(cfg.Hooks.AfterDeploy, HookSpec{Run: yh.Run, When: yh.When})
		}
	}

	if yc.Retry != nil {
		cfg.Retry = Retry{
			MaxAttempts:    yc.Retry.MaxAttempts,
			InitialDelayMS: yc.Retry.InitialDelayMS,
			MaxDelayMS:     yc.Retry.MaxDelayMS,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseFile parses a configuration from a YAML file.
func ParseFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file %q not found, run 'skylift init' to create it", filePath)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// ToYAML serializes a configuration back to YAML bytes.
func ToYAML(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}

	yc := yamlConfig{
		Project:     cfg.Project,
		Provider:    cfg.Provider.String(),
		Concurrency: cfg.Concurrency,
		EnvFile:     cfg.EnvFile,
		Functions:   make([]yamlFunction, 0, len(cfg.Functions)),
	}

	for _, fn := range cfg.Functions {
		yc.Functions = append(yc.Functions, yamlFunction{
			Name:    fn.Name,
			Path:    fn.Path,
			Handler: fn.Handler,
			Runtime: fn.Runtime,
			Memory:  fn.Memory,
			Timeout: fn.Timeout,
			EnvFile: fn.EnvFile,
		})
	}

	if len(cfg.Hooks.BeforeDeploy) > 0 || len(cfg.Hooks.AfterDeploy) > 0 {
		yh := &yamlHooks{}
		for _, h := range cfg.Hooks.BeforeDeploy {
			yh.BeforeDeploy = append(yh.BeforeDeploy, yamlHook{Run: h.Run, When: h.When})
		}
		for _, h := range cfg.Hooks.AfterDeploy {
			yh.AfterDeploy = append(yh.AfterDeploy, yamlHook{Run: h.Run, When: h.When})
		}
		yc.Hooks = yh
	}

	if cfg.Retry != (Retry{}) {
		yc.Retry = &yamlRetry{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialDelayMS: cfg.Retry.InitialDelayMS,
			MaxDelayMS:     cfg.Retry.MaxDelayMS,
		}
	}

	yamlBytes, err := yaml.Marshal(&yc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return yamlBytes, nil
}

// Scaffold returns a starter configuration for `skylift init`.
func Scaffold(project string, provider types.Provider) *Config {
	return &Config{
		Project:  project,
		Provider: provider,
		Functions: []FunctionSpec{
			{
				Name:    "example-function",
				Path:    "./src/handler.py",
				Handler: "handler.lambda_handler",
				Runtime: "python3.9",
				Memory:  128,
				Timeout: 30,
				EnvFile: ".env",
			},
		},
	}
}
