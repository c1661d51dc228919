// Package subscription talks to the fleet subscription service (candlepin).
package subscription

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/magicaleks/katello-agent/internal/domain"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. https://katello:443/rhsm.
	BaseURL string
	// CertPath and KeyPath locate the consumer identity used for mTLS.
	// They are re-read on every TLS handshake.
	CertPath string
	KeyPath  string
	// CADir holds *.pem files trusted for the server certificate.
	CADir    string
	Insecure bool

	RetryMax int
	Timeout  time.Duration
}

// Client performs consumer lookups against the subscription service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a Client authenticating with the consumer certificate.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.Insecure,
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			pair, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
			if err != nil {
				return nil, fmt.Errorf("load consumer identity: %w", err)
			}
			return &pair, nil
		},
	}
	if opts.CADir != "" {
		pool, err := loadCAs(opts.CADir)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	transport.DisableKeepAlives = true

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: transport, Timeout: opts.Timeout}
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // suppress default logging
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: opts.BaseURL,
		http:    retryClient.StandardClient(),
		logger:  logger,
	}, nil
}

// GetConsumer confirms that the consumer is still known to the service.
// Failures are *domain.RemoteError values classified as
// domain.ErrRemoteNotFound or domain.ErrTransient.
func (c *Client) GetConsumer(ctx context.Context, consumerID string) error {
	const op = "get consumer"
	path := "/consumers/" + url.PathEscape(consumerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("subscription service error",
			"path", path,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &domain.RemoteError{Op: op, Status: resp.StatusCode}
	}
	return nil
}

func loadCAs(dir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.pem"))
	if err != nil {
		return nil, fmt.Errorf("list ca dir %s: %w", dir, err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read ca %s: %w", path, err)
		}
		pool.AppendCertsFromPEM(data)
	}
	return pool, nil
}
