package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := loadConfig(root, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "garmin.com", cfg.Domain)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, filepath.Join(root, "data", "garmin-tokens"), cfg.TokenDir)
	assert.Empty(t, cfg.Email)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfigDotenvDoesNotOverrideEnvironment(t *testing.T) {
	root := t.TempDir()
	dotenv := "# Garmin account\n\nGARMIN_EMAIL=file@example.com\nGARMIN_PASSWORD=from-file\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(dotenv), 0600))

	cfg, err := loadConfig(root, envFrom(map[string]string{"GARMIN_EMAIL": "env@example.com"}))
	require.NoError(t, err)

	assert.Equal(t, "env@example.com", cfg.Email)
	assert.Equal(t, "from-file", cfg.Password)
}

func TestLoadConfigReadsYAML(t *testing.T) {
	root := t.TempDir()
	yml := "domain: garmin.cn\ntimeout: 10s\nverbose: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte(yml), 0600))

	cfg, err := loadConfig(root, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "garmin.cn", cfg.Domain)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.Verbose)

	cfg, err = loadConfig(root, envFrom(map[string]string{"GARMIN_DOMAIN": "garmin.com", "GARMIN_VERBOSE": "0"}))
	require.NoError(t, err)
	assert.Equal(t, "garmin.com", cfg.Domain)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfigKeepsLoadingPastBadYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte("timeout: soon\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("GARMIN_EMAIL=me@example.com\n"), 0600))

	cfg, err := loadConfig(root, envFrom(nil))
	require.ErrorContains(t, err, "timeout")
	require.NotNil(t, cfg)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, "me@example.com", cfg.Email)
	assert.Equal(t, filepath.Join(root, "data", "garmin-tokens"), cfg.TokenDir)
}

func TestLoadConfigSkipsLinesWithoutEquals(t *testing.T) {
	root := t.TempDir()
	dotenv := "GARMIN_EMAIL=me@example.com\nstray line without equals\n=no key\nGARMIN_PASSWORD=pw\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(dotenv), 0600))

	cfg, err := loadConfig(root, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", cfg.Email)
	assert.Equal(t, "pw", cfg.Password)
}

func TestParseDotenvValues(t *testing.T) {
	values := parseDotenv("GARMIN_PASSWORD=abc #def\r\n" +
		"  GARMIN_DOMAIN =  garmin.cn  \n" +
		"GARMIN_EMAIL=\"me@example.com\"\n" +
		"QUOTED_HASH='pa ss #1'\n" +
		"EQUALS=a=b\n" +
		"# GARMIN_VERBOSE=1\n")

	assert.Equal(t, map[string]string{
		"GARMIN_PASSWORD": "abc #def",
		"GARMIN_DOMAIN":   "garmin.cn",
		"GARMIN_EMAIL":    "me@example.com",
		"QUOTED_HASH":     "pa ss #1",
		"EQUALS":          "a=b",
	}, values)
}

func TestCredentialsRequireBothValues(t *testing.T) {
	cfg := &Config{Email: "  runner@example.com ", Password: " hunter2 "}
	email, password, err := cfg.credentials()
	require.NoError(t, err)
	assert.Equal(t, "runner@example.com", email)
	assert.Equal(t, "hunter2", password)

	cfg = &Config{Email: "runner@example.com", Password: "   "}
	_, _, err = cfg.credentials()
	require.Error(t, err)
	assert.Equal(t, ConfigMissing, kindOf(err))
	assert.Contains(t, err.Error(), "GARMIN_EMAIL and GARMIN_PASSWORD")
}
