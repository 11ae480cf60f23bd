package lookup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultUserAgent = "recruiter-outreach/1.0"
	defaultTimeout   = 10 * time.Second
	contentEncoding  = "gzip"
	maxBodySize      = 4 << 20
)

// HTTPConfig is shared by the http backed sources.
type HTTPConfig struct {
	Token             string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

type httpClient struct {
	client    *http.Client
	token     string
	userAgent string
	limiter   *HostLimiter
	logger    *zap.Logger
}

func newHTTPClient(cfg HTTPConfig, logger *zap.Logger) *httpClient {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &httpClient{
		client:    client,
		token:     cfg.Token,
		userAgent: userAgent,
		limiter:   NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:    logger,
	}
}

type response struct {
	status int
	body   []byte
}

// get performs a GET and returns the decoded body. Transport failures are
// returned as errors; status handling is left to the caller.
func (c *httpClient) get(ctx context.Context, rawURL string, q url.Values, accept string) (*response, error) {
	if err := c.limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, err
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// retryableStatus reports statuses that are worth asking again for.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

func badStatus(code int) error {
	return fmt.Errorf("bad status: %d %s", code, http.StatusText(code))
}
