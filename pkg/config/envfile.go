package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadEnvFile reads KEY=VALUE pairs from a .env file. Blank lines and lines
// starting with '#' are skipped; surrounding single or double quotes on
// values are stripped. A missing file is not an error: deployments without
// environment variables are common.
func ReadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%s:%d: malformed line (expected KEY=VALUE)", path, lineNo)
		}

		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%s:%d: empty key", path, lineNo)
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	return vars, nil
}

// ResolveEnv builds the environment variable set for one function: the
// project-wide env file first, then the function's own env file on top,
// with an optional override file winning over both.
func ResolveEnv(cfg *Config, fn FunctionSpec, overrideFile string) (map[string]string, error) {
	merged := make(map[string]string)

	for _, path := range []string{cfg.EnvFile, fn.EnvFile, overrideFile} {
		if path == "" {
			continue
		}
		vars, err := ReadEnvFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			merged[k] = v
		}
	}

	return merged, nil
}
