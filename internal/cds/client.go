package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rtm0/era5cds/internal/era5"
)

// DefaultURL is the Climate Data Store API root.
const DefaultURL = "https://cds.climate.copernicus.eu/api"

// Config holds the connection settings of a Client.
type Config struct {
	// URL is the API root, e.g. DefaultURL.
	URL string
	// Key is the personal access token sent as PRIVATE-TOKEN.
	Key string

	// PollInterval is the first pause between job status checks. Each
	// further pause is 1.5 times longer, up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// MaxWait bounds the time a job may spend queued or running. Zero
	// waits for as long as the context allows.
	MaxWait time.Duration

	UserAgent string
}

// Client is a Climate Data Store client capable of submitting retrieve
// requests and downloading their results.
type Client struct {
	logger          *slog.Logger
	httpCli         *http.Client
	baseURL         *url.URL
	key             string
	userAgent       string
	pollInterval    time.Duration
	maxPollInterval time.Duration
	maxWait         time.Duration

	// sleep pauses between status checks; replaced in tests.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a new CDS client.
func NewClient(logger *slog.Logger, cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported CDS API URL %q", cfg.URL)
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("no CDS API key configured")
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	c := &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   30 * time.Second,
				ResponseHeaderTimeout: 2 * time.Minute,
				MaxIdleConns:          2,
				IdleConnTimeout:       30 * time.Second,
			},
		},
		baseURL:         base,
		key:             cfg.Key,
		userAgent:       cfg.UserAgent,
		pollInterval:    cfg.PollInterval,
		maxPollInterval: cfg.MaxPollInterval,
		maxWait:         cfg.MaxWait,
		sleep:           sleep,
	}
	c.httpCli.CheckRedirect = c.checkRedirect
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.maxPollInterval < c.pollInterval {
		c.maxPollInterval = c.pollInterval
	}
	if c.userAgent == "" {
		c.userAgent = "era5-go"
	}
	return c, nil
}

// Retrieve submits the request to the collection, waits for the job to
// complete and returns the body of the prepared asset. The caller must close
// it.
func (c *Client) Retrieve(ctx context.Context, collection string, req era5.Request) (io.ReadCloser, error) {
	job, err := c.Submit(ctx, collection, req)
	if err != nil {
		return nil, err
	}
	if job, err = c.Wait(ctx, job); err != nil {
		return nil, err
	}
	asset, err := c.Results(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return c.Download(ctx, asset)
}

// endpoint returns the absolute URL of an API path.
func (c *Client) endpoint(elem ...string) string {
	u := *c.baseURL
	for _, e := range elem {
		u.Path += "/" + url.PathEscape(e)
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.sameHost(req.URL) {
		req.Header.Set("PRIVATE-TOKEN", c.key)
	}
	return req, nil
}

// sameHost reports whether u points at the API host, the only host the
// token is sent to.
func (c *Client) sameHost(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.baseURL.Scheme) && strings.EqualFold(u.Host, c.baseURL.Host)
}

// checkRedirect drops the token before a redirect leaves the API host.
// net/http only strips its own sensitive headers on such hops.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	if !c.sameHost(req.URL) {
		req.Header.Del("PRIVATE-TOKEN")
	}
	return nil
}

// doJSON performs the request and decodes a 2xx JSON response into out.
func (c *Client) doJSON(req *http.Request, jobID string, out any) error {
	res, err := c.httpCli.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return newAPIError(res, jobID)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("cannot decode response of %s %s: %w", req.Method, req.URL.Path, err)
	}
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Debug("Failed to drain response body", "err", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
