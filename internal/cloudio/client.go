// Package cloudio implements the record-oriented HTTP backend protocol:
// a token handshake for session bootstrap plus a generic query/mutation
// endpoint addressing named datasets through aliases.
package cloudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendbook/internal/config"
	"spendbook/internal/core"
	"spendbook/internal/log"
)

const (
	pathPreValidate = "/x"
	pathAuth        = "/auth"
	pathSignout     = "/signout"
	pathAPI         = "/api"

	// The handshake endpoints identify themselves as the sign-in app,
	// independent of the configured application name.
	signInApplication = "SignIn"
)

// ErrMutationRejected marks a mutation the backend refused under an HTTP
// 2xx: the decoded status discriminator was not "OK". Callers that sent
// an optimistic-staleness token can translate this into a conflict.
var ErrMutationRejected = errors.New("mutation rejected by backend")

type Client struct {
	baseURL   string
	appName   string
	apiKey    string
	authToken string
	http      *http.Client
	logger    *log.Logger
}

// New creates a backend client from configuration. The HTTP client uses
// pooled connections with keep-alive so repeated query/mutation calls
// reuse transport state.
func New(cfg *config.Config, logger *log.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		appName:   cfg.AppName,
		apiKey:    cfg.APIKey,
		authToken: cfg.AuthToken,
		http:      newPooledHTTPClient(cfg.HTTPTimeout),
		logger:    logger.WithComponent(log.ComponentTransport),
	}
}

// newPooledHTTPClient configures connection pooling, timeouts, and
// keep-alive for the backend host.
func newPooledHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: false,
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// PreValidate sends the client-generated pre-session token and returns
// the server-issued continuation token to echo on the credential
// exchange.
func (c *Client) PreValidate(ctx context.Context, preToken string) (string, error) {
	headers := map[string]string{
		"X-Application": signInApplication,
		"X-Token":       preToken,
	}
	body := map[string]string{"x": preToken}

	var resp struct {
		X string `json:"x"`
	}
	if err := c.post(ctx, pathPreValidate, nil, headers, body, &resp); err != nil {
		return "", fmt.Errorf("pre-validation: %w", err)
	}
	if resp.X == "" {
		return "", fmt.Errorf("pre-validation: empty continuation token: %w", core.ErrNetwork)
	}
	return resp.X, nil
}

// LoginResponse is the credential-exchange reply. Status "OK" carries a
// populated identity; any other status is a rejection.
type LoginResponse struct {
	Status string `json:"status"`
	UserID string `json:"userId"`
	X      string `json:"x"`
	JWT    string `json:"jwt"`
}

// Login exchanges encoded credentials for a session. The transport
// credential is the concatenation of the pre-session token and the
// continuation token from PreValidate.
func (c *Client) Login(ctx context.Context, transportToken, encodedEmail, encodedPassword string) (LoginResponse, error) {
	headers := map[string]string{
		"X-Application": signInApplication,
		"X-Token":       transportToken,
	}
	body := map[string]any{
		"un":              encodedEmail,
		"pw":              encodedPassword,
		"is_admin_url":    false,
		"is_native_login": true,
	}

	var resp LoginResponse
	if err := c.post(ctx, pathAuth, nil, headers, body, &resp); err != nil {
		return LoginResponse{}, fmt.Errorf("credential exchange: %w", err)
	}
	return resp, nil
}

// Signout notifies the backend that the session identified by the
// continuation token is over. Callers treat failures as best-effort.
func (c *Client) Signout(ctx context.Context, continuation string) error {
	headers := map[string]string{"X-Application": signInApplication}
	query := url.Values{"x": {continuation}}
	return c.post(ctx, pathSignout, query, headers, nil, nil)
}

// Query runs a dataset query under the given alias and returns the raw
// row array for the caller to decode.
func (c *Client) Query(ctx context.Context, sess Session, alias, dataset string, q Query) (json.RawMessage, error) {
	body := map[string]datasetRequest{
		alias: {DS: dataset, Query: &q},
	}

	var resp queryResponse
	if err := c.post(ctx, pathAPI, sess.values(), sess.headers(c.appName), body, &resp); err != nil {
		return nil, fmt.Errorf("query %s: %w", dataset, err)
	}
	return resp.rows(alias), nil
}

// Mutate submits insert/update/delete records (_rs "I"/"U"/"D") for a
// dataset. A decoded status other than "OK" is treated as a rejection
// even under HTTP 2xx.
func (c *Client) Mutate(ctx context.Context, sess Session, alias, dataset string, records []map[string]any) error {
	body := map[string]datasetRequest{
		alias: {DS: dataset, Data: records},
	}

	var resp statusResponse
	if err := c.post(ctx, pathAPI, sess.values(), sess.headers(c.appName), body, &resp); err != nil {
		return fmt.Errorf("mutate %s: %w", dataset, err)
	}
	if resp.Status != "" && resp.Status != "OK" {
		return fmt.Errorf("mutate %s: backend status %q: %s: %w", dataset, resp.Status, resp.message(), ErrMutationRejected)
	}
	return nil
}

// RegisterUser provisions an account in the users dataset. Registration
// predates any session, so it authenticates with the static API key and
// auth token instead of a session credential.
func (c *Client) RegisterUser(ctx context.Context, name, email, password string) error {
	if c.authToken == "" || c.apiKey == "" {
		return fmt.Errorf("registration credentials unset: %w", core.ErrConfiguration)
	}

	headers := map[string]string{
		"Authorization": c.authToken,
		"x-api-key":     c.apiKey,
		"X-Application": c.appName,
		"Accept":        "application/json",
	}
	body := map[string]datasetRequest{
		UsersAlias: {DS: UsersDataset, Data: []map[string]any{{
			"_rs":      "I",
			"name":     strings.TrimSpace(name),
			"email":    strings.ToLower(strings.TrimSpace(email)),
			"password": password,
		}}},
	}

	var resp statusResponse
	if err := c.post(ctx, pathAPI, nil, headers, body, &resp); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if resp.Status != "" && resp.Status != "OK" {
		return fmt.Errorf("register user: backend status %q: %s", resp.Status, resp.message())
	}
	return nil
}

// post issues a JSON POST and decodes the response into out (nil out
// discards the body). Transport failures and non-2xx statuses map to the
// network error sentinel.
func (c *Client) post(ctx context.Context, path string, query url.Values, headers map[string]string, body, out any) error {
	traceID := uuid.NewString()
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend unreachable",
			log.FieldTraceID, traceID,
			log.FieldEndpoint, path,
			log.FieldError, err)
		return fmt.Errorf("%s: %v: %w", path, err, core.ErrNetwork)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		log.FieldTraceID, traceID,
		log.FieldEndpoint, path,
		log.FieldStatus, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s: %w", path, resp.StatusCode, strings.TrimSpace(string(snippet)), core.ErrNetwork)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
