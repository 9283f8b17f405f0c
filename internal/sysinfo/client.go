package sysinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const infoPath = "api/system/systemInfo"

// Info is the body of the system info response
type Info struct {
	Language     string `json:"language"`
	AppName      string `json:"appName"`
	CustomerCode string `json:"customerCode"`
	CustomerName string `json:"customerName"`
	Host         string `json:"host"`
	MQTT         string `json:"mqtt"`
	NTPServer    string `json:"ntpServer"`
}

type response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Body    Info   `json:"body"`
}

// Client queries the content server for deployment settings
type Client struct {
	urlRoot string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the server at urlRoot. A nil httpClient
// uses a client with a 10 second timeout.
func NewClient(urlRoot string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if !strings.HasSuffix(urlRoot, "/") {
		urlRoot += "/"
	}
	return &Client{urlRoot: urlRoot, http: httpClient, logger: logger}
}

// Fetch performs one system info request
func (c *Client) Fetch(ctx context.Context) (*Info, error) {
	url := c.urlRoot + infoPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build system info request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("system info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("system info returned HTTP %d", resp.StatusCode)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode system info: %w", err)
	}
	if r.Code != 0 {
		return nil, fmt.Errorf("system info error %d: %s", r.Code, r.Message)
	}
	if r.Body.MQTT == "" {
		return nil, fmt.Errorf("system info has no mqtt address")
	}

	c.logger.Info("System info received",
		zap.String("app_name", r.Body.AppName),
		zap.String("customer_name", r.Body.CustomerName),
		zap.String("mqtt", r.Body.MQTT))

	return &r.Body, nil
}

// FetchWithRetry repeats Fetch up to attempts times, waiting delay between tries
func (c *Client) FetchWithRetry(ctx context.Context, attempts int, delay time.Duration) (*Info, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		info, err := c.Fetch(ctx)
		if err == nil {
			return info, nil
		}
		lastErr = err

		c.logger.Warn("Failed to get system info",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("system info unavailable after %d attempts: %w", attempts, lastErr)
}
