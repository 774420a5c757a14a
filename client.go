// ABOUTME: HTTP client for the Garmin Connect API.
// ABOUTME: Handles OAuth token exchange and refresh, pagination, and the raw read endpoints.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"
)

const (
	userAgent         = "GCM-iOS-5.7.2.1"
	exchangeUserAgent = "com.garmin.android.apps.connectmobile"
	consumerBundleURL = "https://thegarth.s3.amazonaws.com/oauth_consumer.json"

	activityPageSize = 100
)

// Source is the set of read operations the reports are built from. Every
// response is untrusted and may have any shape.
type Source interface {
	BodyBattery(ctx context.Context, start, end string) (Raw, error)
	DailyStats(ctx context.Context, date string) (Raw, error)
	HeartRates(ctx context.Context, date string) (Raw, error)
	Stress(ctx context.Context, date string) (Raw, error)
	TrainingReadiness(ctx context.Context, date string) (Raw, error)
	TrainingStatus(ctx context.Context, date string) (Raw, error)
	MaxMetrics(ctx context.Context, date string) (Raw, error)
	Activities(ctx context.Context, start, limit int) (Raw, error)
}

var _ Source = (*Client)(nil)

type Consumer struct {
	Key    string `json:"consumer_key"`
	Secret string `json:"consumer_secret"`
}

type Client struct {
	ssoBase     string
	apiBase     string
	consumerURL string
	httpClient  *http.Client
	now         func() time.Time

	consumer    *Consumer
	oauth1      *OAuth1Token
	oauth2      *OAuth2Token
	displayName string
}

func NewClient(domain string, timeout time.Duration) *Client {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), "/")
	return &Client{
		ssoBase:     "https://sso." + domain + "/sso",
		apiBase:     "https://connectapi." + domain,
		consumerURL: consumerBundleURL,
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
	}
}

// Tokens returns the current OAuth token pair, nil before login or resume.
func (c *Client) Tokens() (*OAuth1Token, *OAuth2Token) {
	return c.oauth1, c.oauth2
}

// Resume restores a session from the token store, exchanging the OAuth1 token
// for a fresh OAuth2 token when the cached one has expired, and validates the
// session by loading the user's profile.
func (c *Client) Resume(ctx context.Context, store *TokenStore) error {
	o1, o2, err := store.Load()
	if err != nil {
		return err
	}
	c.oauth1, c.oauth2 = o1, o2

	if c.oauth2.Expired(c.now()) {
		fresh, err := c.exchange(ctx, c.oauth1)
		if err != nil {
			return fmt.Errorf("refreshing OAuth2 token: %w", err)
		}
		c.oauth2 = fresh
		if err := store.Save(nil, fresh); err != nil {
			return fmt.Errorf("saving refreshed token: %w", err)
		}
	}

	return c.loadProfile(ctx)
}

func (c *Client) loadProfile(ctx context.Context) error {
	profile, err := c.connectAPI(ctx, "/userprofile-service/socialProfile", nil)
	if err != nil {
		return err
	}
	name, err := profile.Get("displayName").Text()
	if err != nil || name == "" {
		return errors.New("profile response has no display name")
	}
	c.displayName = name
	return nil
}

func (c *Client) fetchConsumer(ctx context.Context) (*Consumer, error) {
	if c.consumer != nil {
		return c.consumer, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.consumerURL, nil)
	if err != nil {
		return nil, err
	}
	// Transport failures are ordinary session errors; only a missing or
	// malformed bundle is a consumerError.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OAuth consumer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &consumerError{err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var consumer Consumer
	if err := json.NewDecoder(resp.Body).Decode(&consumer); err != nil {
		return nil, &consumerError{err: err}
	}
	if consumer.Key == "" || consumer.Secret == "" {
		return nil, &consumerError{err: errors.New("empty consumer key")}
	}

	c.consumer = &consumer
	return c.consumer, nil
}

func (c *Client) oauth1Client(ctx context.Context, token *oauth1.Token) (*http.Client, error) {
	consumer, err := c.fetchConsumer(ctx)
	if err != nil {
		return nil, err
	}
	config := oauth1.NewConfig(consumer.Key, consumer.Secret)
	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.httpClient)
	client := config.Client(ctx, token)
	client.Timeout = c.httpClient.Timeout
	return client, nil
}

// preauthorize trades an SSO service ticket for an OAuth1 token.
func (c *Client) preauthorize(ctx context.Context, ticket string) (*OAuth1Token, error) {
	client, err := c.oauth1Client(ctx, oauth1.NewToken("", ""))
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"ticket":             []string{ticket},
		"login-url":          []string{c.ssoBase + "/embed"},
		"accepts-mfa-tokens": []string{"true"},
	}
	fullURL := c.apiBase + "/oauth-service/oauth/preauthorized?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", exchangeUserAgent)

	body, err := doRequest(client, req)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing OAuth1 response: %w", err)
	}
	token := &OAuth1Token{
		Token:                  values.Get("oauth_token"),
		Secret:                 values.Get("oauth_token_secret"),
		MFAToken:               values.Get("mfa_token"),
		MFAExpirationTimestamp: values.Get("mfa_expiration_timestamp"),
		Domain:                 strings.TrimPrefix(c.apiBase, "https://connectapi."),
	}
	if token.Token == "" || token.Secret == "" {
		return nil, errors.New("OAuth1 response has no token")
	}
	return token, nil
}

// exchange trades an OAuth1 token for a new OAuth2 bearer token.
func (c *Client) exchange(ctx context.Context, o1 *OAuth1Token) (*OAuth2Token, error) {
	client, err := c.oauth1Client(ctx, oauth1.NewToken(o1.Token, o1.Secret))
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	if o1.MFAToken != "" {
		form.Set("mfa_token", o1.MFAToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/oauth-service/oauth/exchange/user/2.0", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", exchangeUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := doRequest(client, req)
	if err != nil {
		return nil, err
	}

	var token OAuth2Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("parsing OAuth2 response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("OAuth2 response has no access token")
	}
	token.stamp(c.now())
	return &token, nil
}

func (c *Client) apiClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.oauth2.AccessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout
	return client
}

// connectAPI issues an authenticated GET. An empty or 204 response is Absent.
func (c *Client) connectAPI(ctx context.Context, path string, params url.Values) (Raw, error) {
	if c.oauth2 == nil {
		return Raw{}, errors.New("not logged in")
	}

	fullURL := c.apiBase + path
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Raw{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.apiClient(ctx).Do(req)
	if err != nil {
		return Raw{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return Raw{}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Raw{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Raw{}, fmt.Errorf("Garmin API error: %d - %s", resp.StatusCode, string(body))
	}

	return ParseRaw(body)
}

func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Garmin API error: %d - %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) BodyBattery(ctx context.Context, start, end string) (Raw, error) {
	params := url.Values{"startDate": []string{start}, "endDate": []string{end}}
	return c.connectAPI(ctx, "/wellness-service/wellness/bodyBattery/reports/daily", params)
}

func (c *Client) DailyStats(ctx context.Context, date string) (Raw, error) {
	params := url.Values{"calendarDate": []string{date}}
	return c.connectAPI(ctx, "/usersummary-service/usersummary/daily/"+url.PathEscape(c.displayName), params)
}

func (c *Client) HeartRates(ctx context.Context, date string) (Raw, error) {
	params := url.Values{"date": []string{date}}
	return c.connectAPI(ctx, "/wellness-service/wellness/dailyHeartRate/"+url.PathEscape(c.displayName), params)
}

func (c *Client) Stress(ctx context.Context, date string) (Raw, error) {
	return c.connectAPI(ctx, "/wellness-service/wellness/dailyStress/"+date, nil)
}

func (c *Client) TrainingReadiness(ctx context.Context, date string) (Raw, error) {
	return c.connectAPI(ctx, "/metrics-service/metrics/trainingreadiness/"+date, nil)
}

func (c *Client) TrainingStatus(ctx context.Context, date string) (Raw, error) {
	return c.connectAPI(ctx, "/metrics-service/metrics/trainingstatus/aggregated/"+date, nil)
}

func (c *Client) MaxMetrics(ctx context.Context, date string) (Raw, error) {
	return c.connectAPI(ctx, fmt.Sprintf("/metrics-service/metrics/maxmet/daily/%s/%s", date, date), nil)
}

// Activities returns up to limit activities, most recent first, starting at
// offset start. Large requests are split into pages.
func (c *Client) Activities(ctx context.Context, start, limit int) (Raw, error) {
	var result []any

	for offset := start; offset < start+limit; {
		size := min(activityPageSize, start+limit-offset)
		params := url.Values{
			"start": []string{strconv.Itoa(offset)},
			"limit": []string{strconv.Itoa(size)},
		}

		page, err := c.connectAPI(ctx, "/activitylist-service/activities/search/activities", params)
		if err != nil {
			return Raw{}, err
		}
		if !page.IsList() {
			if offset == start {
				return page, nil
			}
			break
		}

		items := page.Value().([]any)
		result = append(result, items...)
		if len(items) < size {
			break
		}
		offset += size
	}

	if result == nil {
		result = []any{}
	}
	return FromJSON(result), nil
}
