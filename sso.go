// ABOUTME: Garmin SSO sign-in flow used by setup.
// ABOUTME: Walks the embed widget pages, answers the MFA challenge, and exchanges the ticket for tokens.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
)

var (
	csrfRegex   = regexp.MustCompile(`name="_csrf"\s+value="(.+?)"`)
	titleRegex  = regexp.MustCompile(`<title>(.+?)</title>`)
	ticketRegex = regexp.MustCompile(`embed\?ticket=([^"]+)"`)
)

// MFAPrompt returns a one-time code. An empty code means no MFA is set up.
type MFAPrompt func() (string, error)

type ssoSession struct {
	client  *http.Client
	base    string
	referer string
}

func (s *ssoSession) embedParams() url.Values {
	return url.Values{
		"id":          []string{"gauth-widget"},
		"embedWidget": []string{"true"},
		"gauthHost":   []string{s.base},
	}
}

func (s *ssoSession) signinParams() url.Values {
	embed := s.base + "/embed"
	params := s.embedParams()
	params.Set("gauthHost", embed)
	params.Set("service", embed)
	params.Set("source", embed)
	params.Set("redirectAfterAccountLoginUrl", embed)
	params.Set("redirectAfterAccountCreationUrl", embed)
	return params
}

func (s *ssoSession) get(ctx context.Context, path string, params url.Values) (string, error) {
	return s.do(ctx, http.MethodGet, path, params, nil)
}

func (s *ssoSession) post(ctx context.Context, path string, params, form url.Values) (string, error) {
	return s.do(ctx, http.MethodPost, path, params, form)
}

func (s *ssoSession) do(ctx context.Context, method, path string, params, form url.Values) (string, error) {
	fullURL := s.base + path + "?" + params.Encode()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if s.referer != "" {
		req.Header.Set("Referer", s.referer)
	}

	page, err := doRequest(s.client, req)
	if err != nil {
		return "", err
	}
	s.referer = fullURL
	return string(page), nil
}

// Login signs in with email and password, prompting for an MFA code when the
// account requires one, and leaves the client holding a fresh token pair.
func (c *Client) Login(ctx context.Context, email, password string, prompt MFAPrompt) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	sso := &ssoSession{
		client: &http.Client{Jar: jar, Timeout: c.httpClient.Timeout, Transport: c.httpClient.Transport},
		base:   c.ssoBase,
	}

	if _, err := sso.get(ctx, "/embed", sso.embedParams()); err != nil {
		return fmt.Errorf("opening sign-in widget: %w", err)
	}

	page, err := sso.get(ctx, "/signin", sso.signinParams())
	if err != nil {
		return fmt.Errorf("loading sign-in page: %w", err)
	}
	csrf, err := match(csrfRegex, page, "CSRF token")
	if err != nil {
		return err
	}

	page, err = sso.post(ctx, "/signin", sso.signinParams(), url.Values{
		"username": []string{email},
		"password": []string{password},
		"embed":    []string{"true"},
		"_csrf":    []string{csrf},
	})
	if err != nil {
		return fmt.Errorf("submitting credentials: %w", err)
	}

	title, err := match(titleRegex, page, "page title")
	if err != nil {
		return err
	}
	if strings.Contains(title, "MFA") {
		page, err = c.answerMFA(ctx, sso, page, prompt)
		if err != nil {
			return err
		}
		if title, err = match(titleRegex, page, "page title"); err != nil {
			return err
		}
	}
	if title != "Success" {
		return fmt.Errorf("unexpected title %q", title)
	}

	ticket, err := match(ticketRegex, page, "service ticket")
	if err != nil {
		return err
	}

	o1, err := c.preauthorize(ctx, ticket)
	if err != nil {
		return fmt.Errorf("fetching OAuth1 token: %w", err)
	}
	o2, err := c.exchange(ctx, o1)
	if err != nil {
		return fmt.Errorf("exchanging OAuth2 token: %w", err)
	}

	c.oauth1, c.oauth2 = o1, o2
	return nil
}

func (c *Client) answerMFA(ctx context.Context, sso *ssoSession, page string, prompt MFAPrompt) (string, error) {
	csrf, err := match(csrfRegex, page, "CSRF token")
	if err != nil {
		return "", err
	}
	if prompt == nil {
		return "", fmt.Errorf("account requires an MFA code")
	}
	code, err := prompt()
	if err != nil {
		return "", fmt.Errorf("reading MFA code: %w", err)
	}

	page, err = sso.post(ctx, "/verifyMFA/loginEnterMfaCode", sso.signinParams(), url.Values{
		"mfa-code": []string{strings.TrimSpace(code)},
		"embed":    []string{"true"},
		"_csrf":    []string{csrf},
		"fromPage": []string{"setupEnterMfaCode"},
	})
	if err != nil {
		return "", fmt.Errorf("submitting MFA code: %w", err)
	}
	return page, nil
}

func match(re *regexp.Regexp, page, what string) (string, error) {
	m := re.FindStringSubmatch(page)
	if len(m) < 2 {
		return "", fmt.Errorf("could not find %s in sign-in response", what)
	}
	return m[1], nil
}
