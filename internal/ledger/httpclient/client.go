// Package httpclient implements the ledger client over a JSON HTTP API.
// A circuit breaker guards the remote: after repeated transport or server
// failures the client fails fast with a store_unavailable classification
// until a cooldown trial succeeds.
package httpclient

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
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"canopy/internal/ledger"
	"canopy/pkg/platform/circuit"
	"canopy/pkg/platform/retry"
)

var tracer = otel.Tracer("canopy.ledger")

// Client is an HTTP ledger client.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

var _ ledger.Client = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient swaps the underlying http.Client, keeping its timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBreaker swaps the circuit breaker guarding the remote.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// New builds a ledger client for baseURL. An empty baseURL yields an
// unconfigured client: IsConfigured reports false and every call fails
// without touching the network.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New("ledger"),
		logger:  slog.Default(),
	}
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger url: %w", err)
		}
		c.baseURL = parsed
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IsConfigured reports whether a ledger endpoint was supplied.
func (c *Client) IsConfigured() bool {
	return c.baseURL != nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// RegisterRecord creates a ledger record for uploaded content.
func (c *Client) RegisterRecord(ctx context.Context, req ledger.RegisterRequest) (*ledger.Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.RegisterRecord",
		trace.WithAttributes(attribute.String("ledger.content_id", req.ContentID)))
	defer span.End()

	var rec wireRecord
	if err := c.do(ctx, "register", http.MethodPost, "/records", req, &rec); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	out := rec.toRecord()
	span.SetAttributes(attribute.String("ledger.record_id", out.ID))
	return &out, nil
}

// GetRecord fetches one record by id.
func (c *Client) GetRecord(ctx context.Context, id string) (*ledger.Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.GetRecord",
		trace.WithAttributes(attribute.String("ledger.record_id", id)))
	defer span.End()

	var rec wireRecord
	if err := c.do(ctx, "get", http.MethodGet, "/records/"+url.PathEscape(id), nil, &rec); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	out := rec.toRecord()
	return &out, nil
}

// GetAllRecords fetches every visible record.
func (c *Client) GetAllRecords(ctx context.Context) ([]ledger.Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.GetAllRecords")
	defer span.End()

	var recs []wireRecord
	if err := c.do(ctx, "list", http.MethodGet, "/records", nil, &recs); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	out := make([]ledger.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toRecord())
	}
	span.SetAttributes(attribute.Int("ledger.record_count", len(out)))
	return out, nil
}

// AttestRecord submits a signed attestation for a registered record.
func (c *Client) AttestRecord(ctx context.Context, req ledger.AttestRequest) (*ledger.Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.AttestRecord",
		trace.WithAttributes(attribute.String("ledger.record_id", req.RecordID)))
	defer span.End()

	var rec wireRecord
	path := "/records/" + url.PathEscape(req.RecordID) + "/attest"
	if err := c.do(ctx, "attest", http.MethodPost, path, req, &rec); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	out := rec.toRecord()
	return &out, nil
}

// do runs one request through the breaker and decodes the response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.baseURL == nil {
		return ledger.NewError(op, retry.ClassValidation, "ledger not configured", nil)
	}
	if !c.breaker.Allow() {
		return ledger.NewError(op, retry.ClassStoreUnavailable, "circuit open", nil)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return ledger.NewError(op, retry.ClassInternal, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return ledger.NewError(op, retry.ClassInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(ctx, op)
		return classifyTransport(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		lerr := classifyStatus(op, resp.StatusCode)
		// Client-side rejections say nothing about remote health.
		if resp.StatusCode >= 500 {
			c.recordFailure(ctx, op)
		} else {
			c.recordSuccess(ctx)
		}
		return lerr
	}

	c.recordSuccess(ctx)

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return ledger.NewError(op, retry.ClassInternal, "decode response", err)
	}
	return nil
}

func (c *Client) recordFailure(ctx context.Context, op string) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "ledger circuit opened", "operation", op)
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "ledger circuit closed")
	}
}

func classifyTransport(op string, err error) *ledger.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ledger.NewError(op, retry.ClassTimeout, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return ledger.NewError(op, retry.ClassTimeout, "request canceled", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ledger.NewError(op, retry.ClassTimeout, "request timed out", err)
	}
	return ledger.NewError(op, retry.ClassNetwork, "ledger unreachable", err)
}

func classifyStatus(op string, status int) *ledger.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return ledger.NewError(op, retry.ClassCongestion, "ledger throttling requests", nil)
	case status == http.StatusNotFound:
		return ledger.NewError(op, retry.ClassNotFound, "record not found", nil)
	case status >= 500:
		return ledger.NewError(op, retry.ClassStoreUnavailable, fmt.Sprintf("ledger returned %d", status), nil)
	case status >= 400:
		return ledger.NewError(op, retry.ClassValidation, fmt.Sprintf("ledger rejected request with %d", status), nil)
	}
	return ledger.NewError(op, retry.ClassInternal, fmt.Sprintf("unexpected status %d", status), nil)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// wireRecord mirrors the ledger's JSON shape. The id field arrives as either
// a JSON string or a bare number depending on which side assigned it, so it
// decodes as any and normalizes to a string.
type wireRecord struct {
	ID          any       `json:"id"`
	ContentID   string    `json:"contentId"`
	Owner       string    `json:"owner"`
	ProjectName string    `json:"projectName"`
	Amount      uint64    `json:"amount"`
	Attested    bool      `json:"attested"`
	TxRef       string    `json:"txRef"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (w wireRecord) toRecord() ledger.Record {
	return ledger.Record{
		ID:          normalizeID(w.ID),
		ContentID:   w.ContentID,
		Owner:       w.Owner,
		ProjectName: w.ProjectName,
		Amount:      w.Amount,
		Attested:    w.Attested,
		TxRef:       w.TxRef,
		CreatedAt:   w.CreatedAt,
	}
}

func normalizeID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
