package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4

	// maxErrorBody caps how much of a failed response is kept.
	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	URL         string
	Payload     string // nested or flat
	Timeout     time.Duration
	Concurrency int
}

// Logger defines the logging interface used by Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client posts device configurations to the backend.
type Client struct {
	opts   Options
	http   *http.Client
	logger Logger
}

// New creates a Client. httpClient may be nil.
func New(opts Options, httpClient *http.Client) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Payload == "" {
		opts.Payload = PayloadNested
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, http: httpClient, logger: noopLogger{}}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// PushDevice sends one device and its registers. A non-2xx answer is
// returned as *StatusError.
func (c *Client) PushDevice(ctx context.Context, token string, it Item) error {
	if c.opts.URL == "" {
		return ErrNoEndpoint
	}
	if strings.TrimSpace(token) == "" {
		return ErrNoToken
	}

	body, err := json.Marshal(buildBody(c.opts.Payload, it))
	if err != nil {
		return fmt.Errorf("push: encoding %s: %w", it.Device.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	c.logger.Debug("device pushed", "id", it.Device.ID, "status", resp.StatusCode)
	return nil
}

// Result summarises a PushAll run. Errors holds one "<deviceName>: <error>"
// line per failed device, in input order.
type Result struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// PushAll sends every item once, at most Concurrency at a time. A failed
// item does not stop the others and is not retried.
func (c *Client) PushAll(ctx context.Context, token string, items []Item) Result {
	errs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i := range items {
		g.Go(func() error {
			// Errors are kept per item; the group itself never fails.
			errs[i] = c.PushDevice(gctx, token, items[i])
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines always return nil

	res := Result{Errors: []string{}}
	for i, err := range errs {
		if err == nil {
			res.Succeeded++
			continue
		}
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", items[i].Device.Name, err))
	}

	c.logger.Info("push completed", "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}
