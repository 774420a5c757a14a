// ABOUTME: On-disk cache of Garmin OAuth tokens.
// ABOUTME: Reads and writes oauth1_token.json and oauth2_token.json in the token directory.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	oauth1File = "oauth1_token.json"
	oauth2File = "oauth2_token.json"
)

type OAuth1Token struct {
	Token                  string `json:"oauth_token"`
	Secret                 string `json:"oauth_token_secret"`
	MFAToken               string `json:"mfa_token,omitempty"`
	MFAExpirationTimestamp string `json:"mfa_expiration_timestamp,omitempty"`
	Domain                 string `json:"domain,omitempty"`
}

type OAuth2Token struct {
	Scope                 string `json:"scope"`
	JTI                   string `json:"jti"`
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	ExpiresAt             int64  `json:"expires_at"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
}

// Expiry returns when the access token stops being accepted. Tokens without
// expires_at fall back to the exp claim of the JWT access token.
func (t *OAuth2Token) Expiry() (time.Time, bool) {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0), true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (t *OAuth2Token) Expired(now time.Time) bool {
	exp, ok := t.Expiry()
	if !ok {
		return true
	}
	return !now.Before(exp)
}

// stamp fills the absolute expiry fields from the relative ones.
func (t *OAuth2Token) stamp(now time.Time) {
	if t.ExpiresIn > 0 {
		t.ExpiresAt = now.Unix() + t.ExpiresIn
	}
	if t.RefreshTokenExpiresIn > 0 {
		t.RefreshTokenExpiresAt = now.Unix() + t.RefreshTokenExpiresIn
	}
}

type TokenStore struct {
	dir string
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

func (s *TokenStore) Dir() string { return s.dir }

func (s *TokenStore) Exists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

func (s *TokenStore) Load() (*OAuth1Token, *OAuth2Token, error) {
	var o1 OAuth1Token
	if err := readTokenFile(filepath.Join(s.dir, oauth1File), &o1); err != nil {
		return nil, nil, err
	}
	var o2 OAuth2Token
	if err := readTokenFile(filepath.Join(s.dir, oauth2File), &o2); err != nil {
		return nil, nil, err
	}
	if o1.Token == "" || o2.AccessToken == "" {
		return nil, nil, fmt.Errorf("token cache at %s is incomplete", s.dir)
	}
	return &o1, &o2, nil
}

func (s *TokenStore) Save(o1 *OAuth1Token, o2 *OAuth2Token) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	if o1 != nil {
		if err := writeTokenFile(filepath.Join(s.dir, oauth1File), o1); err != nil {
			return err
		}
	}
	if o2 != nil {
		if err := writeTokenFile(filepath.Join(s.dir, oauth2File), o2); err != nil {
			return err
		}
	}
	return nil
}

func readTokenFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeTokenFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
