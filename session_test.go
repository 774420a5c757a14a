package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	err     error
	mfa     bool
	email   string
	mfaCode string
}

func (f *fakeAuth) Login(_ context.Context, email, _ string, prompt MFAPrompt) error {
	f.email = email
	if f.mfa {
		code, err := prompt()
		if err != nil {
			return err
		}
		f.mfaCode = code
	}
	return f.err
}

func (f *fakeAuth) Tokens() (*OAuth1Token, *OAuth2Token) {
	return &OAuth1Token{Token: "t1", Secret: "s1"}, &OAuth2Token{AccessToken: "a1"}
}

func setupConfig(t *testing.T) *Config {
	return &Config{
		Email:    "runner@example.com",
		Password: "hunter2",
		Domain:   "example.com",
		TokenDir: filepath.Join(t.TempDir(), "data", "garmin-tokens"),
	}
}

func TestLoadSessionWithoutTokenDirectory(t *testing.T) {
	cfg := setupConfig(t)

	_, err := loadSession(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, SessionMissing, kindOf(err))
	assert.Contains(t, err.Error(), cfg.TokenDir)
	assert.Contains(t, err.Error(), "setup")
}

func TestLoadSessionWithUnreadableCache(t *testing.T) {
	cfg := setupConfig(t)
	cfg.TokenDir = t.TempDir()

	_, err := loadSession(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, SessionInvalid, kindOf(err))
	assert.True(t, strings.HasPrefix(err.Error(), "Token login failed: "))
	assert.Contains(t, err.Error(), "Run: garmin-report setup")
}

func TestRunSetupRequiresCredentials(t *testing.T) {
	cfg := setupConfig(t)
	cfg.Password = ""
	auth := &fakeAuth{}

	_, err := runSetup(context.Background(), cfg, auth, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, ConfigMissing, kindOf(err))
	assert.Empty(t, auth.email)
}

func TestRunSetupSavesTokens(t *testing.T) {
	cfg := setupConfig(t)

	msg, err := runSetup(context.Background(), cfg, &fakeAuth{}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "Logged in as runner@example.com. Tokens saved to "+cfg.TokenDir, msg)

	o1, o2, err := NewTokenStore(cfg.TokenDir).Load()
	require.NoError(t, err)
	assert.Equal(t, "t1", o1.Token)
	assert.Equal(t, "a1", o2.AccessToken)
}

func TestRunSetupReadsMFACode(t *testing.T) {
	cfg := setupConfig(t)
	auth := &fakeAuth{mfa: true}
	var prompt bytes.Buffer

	_, err := runSetup(context.Background(), cfg, auth, strings.NewReader("654321\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "654321", auth.mfaCode)
	assert.Contains(t, prompt.String(), "Enter MFA/2FA code")

	auth = &fakeAuth{mfa: true}
	_, err = runSetup(context.Background(), cfg, auth, strings.NewReader(""), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "", auth.mfaCode)
}

func TestRunSetupMapsLoginErrors(t *testing.T) {
	cfg := setupConfig(t)

	_, err := runSetup(context.Background(), cfg, &fakeAuth{err: errors.New(`unexpected title "Sign In"`)},
		strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, LoginFailed, kindOf(err))
	assert.Equal(t, `Login failed: unexpected title "Sign In"`, err.Error())
	assert.False(t, NewTokenStore(cfg.TokenDir).Exists())

	consumerErr := &consumerError{err: errors.New("status 403")}
	_, err = runSetup(context.Background(), cfg, &fakeAuth{err: consumerErr}, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, DependencyMissing, kindOf(err))
	assert.Contains(t, err.Error(), "OAuth consumer credentials unavailable")
}
