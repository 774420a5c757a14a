// ABOUTME: Configuration management for garmin-report.
// ABOUTME: Layers config.yaml, .env, the process environment, and flag overrides into one Config.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envEmail    = "GARMIN_EMAIL"
	envPassword = "GARMIN_PASSWORD"
	envDomain   = "GARMIN_DOMAIN"
	envVerbose  = "GARMIN_VERBOSE"

	defaultDomain  = "garmin.com"
	defaultTimeout = 30 * time.Second
)

type Config struct {
	Email    string
	Password string
	Domain   string
	Timeout  time.Duration
	Verbose  bool

	// TokenDir holds the cached OAuth tokens written by setup.
	TokenDir string
	EnvFile  string
}

type fileConfig struct {
	Domain  string `yaml:"domain"`
	Timeout string `yaml:"timeout"`
	Verbose bool   `yaml:"verbose"`
}

// projectRoot is the directory holding the garmin-report executable.
func projectRoot() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// defaultConfig loads the configuration next to the running executable. A
// non-nil Config is always returned; err reports files that could not be read
// and were skipped.
func defaultConfig() (*Config, error) {
	root, err := projectRoot()
	if err != nil {
		cfg, loadErr := loadConfig(".", os.LookupEnv)
		return cfg, errors.Join(fmt.Errorf("could not locate %s: %w", programName, err), loadErr)
	}
	return loadConfig(root, os.LookupEnv)
}

// loadConfig builds a Config rooted at root. Values already present in the
// process environment win over .env entries; command flags are applied later
// and win over both. A broken config.yaml or unreadable .env is reported in
// err while the remaining layers still apply.
func loadConfig(root string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{
		Domain:   defaultDomain,
		Timeout:  defaultTimeout,
		TokenDir: filepath.Join(root, "data", "garmin-tokens"),
		EnvFile:  filepath.Join(root, ".env"),
	}

	var errs []error
	if err := cfg.applyFile(filepath.Join(root, "config.yaml")); err != nil {
		errs = append(errs, err)
	}

	dotenv, err := readDotenv(cfg.EnvFile)
	if err != nil {
		errs = append(errs, err)
	}

	get := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if v, ok := get(envEmail); ok {
		cfg.Email = v
	}
	if v, ok := get(envPassword); ok {
		cfg.Password = v
	}
	if v, ok := get(envDomain); ok && strings.TrimSpace(v) != "" {
		cfg.Domain = strings.TrimSpace(v)
	}
	if v, ok := get(envVerbose); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Verbose = b
		}
	}

	return cfg, errors.Join(errs...)
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Domain != "" {
		c.Domain = fc.Domain
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse %s: timeout: %w", path, err)
		}
		c.Timeout = d
	}
	c.Verbose = fc.Verbose
	return nil
}

// readDotenv reads KEY=VALUE lines. Blank lines, # comments and lines
// without "=" are skipped. A missing file yields an empty map.
func readDotenv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return map[string]string{}, err
	}
	return parseDotenv(string(data)), nil
}

func parseDotenv(data string) map[string]string {
	values := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = dotenvValue(key, strings.TrimSpace(value))
	}
	return values
}

// dotenvValue returns value verbatim, including any # characters. Only a
// value wrapped in matching quotes is decoded, with dotenv escape rules.
func dotenvValue(key, value string) string {
	if len(value) < 2 || (value[0] != '"' && value[0] != '\'') || value[len(value)-1] != value[0] {
		return value
	}
	parsed, err := godotenv.Unmarshal(key + "=" + value)
	if err != nil {
		return value
	}
	if v, ok := parsed[key]; ok {
		return v
	}
	return value
}

// credentials returns the trimmed account identifier and secret required by
// the login flow.
func (c *Config) credentials() (string, string, error) {
	email := strings.TrimSpace(c.Email)
	password := strings.TrimSpace(c.Password)
	if email == "" || password == "" {
		return "", "", newError(ConfigMissing, nil,
			"%s and %s must be set in .env for setup", envEmail, envPassword)
	}
	return email, password, nil
}
