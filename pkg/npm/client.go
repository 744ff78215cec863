package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/pkgpulse/pkgpulse/pkg/observability"
)

const (
	// DefaultRegistryURL serves package metadata.
	DefaultRegistryURL = "https://registry.npmjs.org"
	// DefaultDownloadsURL serves point-in-time download counts.
	DefaultDownloadsURL = "https://api.npmjs.org"
	// DefaultTimeout bounds every provider call.
	DefaultTimeout = 10 * time.Second

	// maxNameLength is the registry's limit on full package names.
	maxNameLength = 214
)

// namePattern is the registry naming grammar: an optional @scope/ prefix of
// lowercase alphanumerics plus "-", ".", "~", "_", then a name of the same
// character class.
var namePattern = regexp.MustCompile(`^(@[a-z0-9._~-]+/)?[a-z0-9._~-]+$`)

// ValidateName checks a package name against the registry grammar.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Config holds provider client configuration.
type Config struct {
	RegistryURL  string
	DownloadsURL string
	Timeout      time.Duration
}

// PackageInfo is the abbreviated registry metadata for one package.
type PackageInfo struct {
	Name        string
	Description string
	Repository  string
}

// Client fetches package metadata and download counts from the npm registry.
type Client struct {
	registryURL  string
	downloadsURL string
	httpClient   *http.Client
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger attaches a structured logger.
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// NewClient creates a provider client. Zero-value config fields fall back to
// the public npm endpoints and the default timeout.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = DefaultRegistryURL
	}
	if cfg.DownloadsURL == "" {
		cfg.DownloadsURL = DefaultDownloadsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		registryURL:  cfg.RegistryURL,
		downloadsURL: cfg.DownloadsURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// packageDocument is the subset of the registry metadata document we consume.
type packageDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Repository  struct {
		URL string `json:"url"`
	} `json:"repository"`
}

// FetchPackageInfo looks up package metadata by name.
func (c *Client) FetchPackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	if err := ValidateName(name); err != nil {
		c.observe("metadata", "invalid")
		return nil, err
	}

	// Scoped names keep the "@" but the slash must be escaped.
	endpoint := fmt.Sprintf("%s/%s", c.registryURL, url.PathEscape(name))
	var doc packageDocument
	if err := c.getJSON(ctx, endpoint, "metadata", &doc); err != nil {
		return nil, err
	}

	c.observe("metadata", "ok")
	return &PackageInfo{
		Name:        doc.Name,
		Description: doc.Description,
		Repository:  doc.Repository.URL,
	}, nil
}

// pointDocument is the downloads API response for a point query.
type pointDocument struct {
	Downloads int64  `json:"downloads"`
	Package   string `json:"package"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// FetchDownloads returns the download count for one package over the
// inclusive [start, end] window. Dates are truncated to calendar days.
func (c *Client) FetchDownloads(ctx context.Context, name string, start, end time.Time) (int64, error) {
	if err := ValidateName(name); err != nil {
		c.observe("downloads", "invalid")
		return 0, err
	}

	// The downloads API takes scoped names with a literal slash.
	endpoint := fmt.Sprintf("%s/downloads/point/%s:%s/%s",
		c.downloadsURL,
		start.Format("2006-01-02"),
		end.Format("2006-01-02"),
		name)

	var doc pointDocument
	if err := c.getJSON(ctx, endpoint, "downloads", &doc); err != nil {
		return 0, err
	}

	c.observe("downloads", "ok")
	return doc.Downloads, nil
}

// getJSON performs one GET and decodes the body, mapping failures onto the
// package error taxonomy. Each call is isolated: one failure never carries
// state into the next request.
func (c *Client) getJSON(ctx context.Context, endpoint, operation string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.observe(operation, "unavailable")
		return fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.FetchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.observe(operation, "unavailable")
		c.logWarn(operation, endpoint, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.observe(operation, "not_found")
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.observe(operation, "unavailable")
		return fmt.Errorf("%w: HTTP %d for %s", ErrUnavailable, resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		c.observe(operation, "unavailable")
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) observe(operation, result string) {
	if c.metrics != nil {
		c.metrics.FetchesTotal.WithLabelValues(operation, result).Inc()
	}
}

func (c *Client) logWarn(operation, endpoint string, err error) {
	if c.logger != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warnf("%s fetch failed", operation)
	}
}
