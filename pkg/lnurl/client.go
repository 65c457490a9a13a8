// Package lnurl resolves Lightning addresses (user@domain) to LNURL-pay endpoints.
package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for a single lookup.
const DefaultTimeout = 3 * time.Second

// TagPayRequest is the LNURL tag identifying a pay endpoint.
const TagPayRequest = "payRequest"

// maxBodySize caps how much of a well-known response is read.
const maxBodySize = 64 * 1024

// ErrNotPayEndpoint is returned when the well-known document is not a usable pay request.
var ErrNotPayEndpoint = errors.New("not an LNURL pay endpoint")

// PayEndpoint is the LNURL-pay document served at /.well-known/lnurlp/<user>.
type PayEndpoint struct {
	Tag            string `json:"tag"`
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed,omitempty"`
	AllowsNostr    bool   `json:"allowsNostr,omitempty"`
	NostrPubkey    string `json:"nostrPubkey,omitempty"`
}

// errorDocument is the LNURL error shape: {"status":"ERROR","reason":"..."}.
type errorDocument struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lnurl endpoint returned status %d: %s", e.Code, e.Body)
}

// IsRetryable reports whether the status is worth retrying (5xx and 429).
func (e *StatusError) IsRetryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryConfig sets the retry policy for transient failures.
func WithRetryConfig(cfg *retry.Config) Option {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// Client resolves Lightning addresses.
type Client struct {
	httpClient  *http.Client
	retryConfig *retry.Config
	logger      *zap.Logger
}

// NewClient creates a client whose lookups time out after timeout.
func NewClient(timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryConfig: retry.DefaultConfig(),
		logger:      logger.Named("lnurl"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseAddress splits a Lightning address into user and domain.
func ParseAddress(address string) (user, domain string, err error) {
	address = strings.TrimSpace(address)
	user, domain, ok := strings.Cut(address, "@")
	if !ok || user == "" || domain == "" || strings.Contains(domain, "@") {
		return "", "", fmt.Errorf("%w: %q is not of the form user@domain", apperrors.ErrInvalidAddress, address)
	}
	if strings.ContainsAny(user, "/?#") || strings.ContainsAny(domain, "/?# ") {
		return "", "", fmt.Errorf("%w: %q contains URL characters", apperrors.ErrInvalidAddress, address)
	}
	return strings.ToLower(user), strings.ToLower(domain), nil
}

// WellKnownURL returns the LNURL-pay document URL for a Lightning address.
func WellKnownURL(address string) (string, error) {
	user, domain, err := ParseAddress(address)
	if err != nil {
		return "", err
	}
	return buildURL("https://"+domain, ".well-known", "lnurlp", user)
}

// Resolve fetches and validates the pay endpoint behind address. Transient
// failures are retried; a document that is not a payRequest with a callback
// returns ErrNotPayEndpoint.
func (c *Client) Resolve(ctx context.Context, address string) (*PayEndpoint, error) {
	endpoint, err := WellKnownURL(address)
	if err != nil {
		return nil, err
	}

	var result *PayEndpoint
	err = retry.DoIfRetryable(ctx, c.retryConfig, func() error {
		var fetchErr error
		result, fetchErr = c.fetch(ctx, endpoint)
		return fetchErr
	})
	if err != nil {
		c.logger.Debug("Address lookup failed",
			zap.String("address", address),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	c.logger.Debug("Resolved address",
		zap.String("address", address),
		zap.Int64("min_sendable", result.MinSendable),
		zap.Int64("max_sendable", result.MaxSendable))

	return result, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*PayEndpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call lnurl endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: logging.TruncateString(string(body), 200)}
	}

	var errDoc errorDocument
	if json.Unmarshal(body, &errDoc) == nil && strings.EqualFold(errDoc.Status, "ERROR") {
		return nil, fmt.Errorf("%w: %s", ErrNotPayEndpoint, errDoc.Reason)
	}

	var pay PayEndpoint
	if err := json.Unmarshal(body, &pay); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrNotPayEndpoint, err)
	}
	if pay.Tag != TagPayRequest {
		return nil, fmt.Errorf("%w: tag is %q", ErrNotPayEndpoint, pay.Tag)
	}
	if pay.Callback == "" {
		return nil, fmt.Errorf("%w: missing callback", ErrNotPayEndpoint)
	}

	return &pay, nil
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}

	return u.String(), nil
}
