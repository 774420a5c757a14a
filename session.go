// ABOUTME: Session loading from the token cache and the interactive setup login.
// ABOUTME: Maps every failure onto the CLIError kinds printed by main.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// loadSession resumes the cached session in cfg.TokenDir. No request is made
// when the directory does not exist.
func loadSession(ctx context.Context, cfg *Config) (Source, error) {
	store := NewTokenStore(cfg.TokenDir)
	if !store.Exists() {
		return nil, newError(SessionMissing, nil,
			"No Garmin tokens found at %s. Run: %s setup", store.Dir(), programName)
	}

	client := NewClient(cfg.Domain, cfg.Timeout)
	if err := client.Resume(ctx, store); err != nil {
		if isConsumerError(err) {
			return nil, newError(DependencyMissing, err, "%v", err)
		}
		return nil, newError(SessionInvalid, err,
			"Token login failed: %v. Run: %s setup", err, programName)
	}
	return client, nil
}

// Authenticator signs in and exposes the resulting token pair.
type Authenticator interface {
	Login(ctx context.Context, email, password string, prompt MFAPrompt) error
	Tokens() (*OAuth1Token, *OAuth2Token)
}

// runSetup performs the one-time login and persists the tokens. It returns
// the confirmation message printed on success.
func runSetup(ctx context.Context, cfg *Config, auth Authenticator, in io.Reader, prompt io.Writer) (string, error) {
	email, password, err := cfg.credentials()
	if err != nil {
		return "", err
	}

	reader := bufio.NewReader(in)
	promptMFA := func() (string, error) {
		color.New(color.FgCyan).Fprint(prompt, "Enter MFA/2FA code (or press Enter if not enabled): ")
		code, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return strings.TrimSpace(code), nil
	}

	if err := auth.Login(ctx, email, password, promptMFA); err != nil {
		if isConsumerError(err) {
			return "", newError(DependencyMissing, err, "%v", err)
		}
		return "", newError(LoginFailed, err, "Login failed: %v", err)
	}

	store := NewTokenStore(cfg.TokenDir)
	if err := store.Save(auth.Tokens()); err != nil {
		return "", newError(LoginFailed, err, "Login failed: could not save tokens: %v", err)
	}

	return fmt.Sprintf("Logged in as %s. Tokens saved to %s", email, store.Dir()), nil
}
