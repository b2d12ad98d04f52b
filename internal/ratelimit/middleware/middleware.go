// Package middleware enforces per-caller request budgets on the HTTP surface.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"canopy/internal/ratelimit/metrics"
	"canopy/internal/ratelimit/models"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/platform/middleware/metadata"
	"canopy/pkg/requestcontext"
)

// Checker decides whether one more request fits the caller's budget.
type Checker interface {
	Check(ctx context.Context, identifier string, class models.EndpointClass) (*models.Result, error)
}

// Middleware classifies each request by cost, charges it against the caller's
// window, and rejects with 429 once the budget is spent. Store failures admit
// the request; a degraded limiter must not take the API down with it.
type Middleware struct {
	checker Checker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

func New(checker Checker, logger *slog.Logger, opts ...Option) *Middleware {
	mw := &Middleware{
		checker: checker,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(mw)
	}
	return mw
}

// Limit is the http middleware. Mount it inside the authenticated group so
// budgets attach to actor IDs; unauthenticated callers fall back to client IP.
func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := classify(r)
		identifier := identify(r)

		result, err := m.checker.Check(r.Context(), identifier, class)
		if err != nil {
			m.logger.Warn("rate limit check failed, admitting request",
				"class", string(class),
				"error", err,
			)
			if m.metrics != nil {
				m.metrics.IncrementFailOpen()
			}
			next.ServeHTTP(w, r)
			return
		}

		writeBudgetHeaders(w, result)
		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.IncrementCheck(string(class), "rejected")
			}
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "request budget exhausted, retry later"))
			return
		}

		if m.metrics != nil {
			m.metrics.IncrementCheck(string(class), "allowed")
		}
		next.ServeHTTP(w, r)
	})
}

// classify buckets a request by its cost. Uploads carry hashing, dedup, and a
// ledger round trip; other writes are lifecycle or admin mutations; reads are
// cheap.
func classify(r *http.Request) models.EndpointClass {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return models.ClassRead
	case http.MethodPost:
		if strings.TrimSuffix(r.URL.Path, "/") == "/v1/documents" {
			return models.ClassUpload
		}
	}
	return models.ClassMutation
}

// identify picks the window key for the caller. Actor ID keeps a user's budget
// stable across addresses; the IP fallback still bounds unauthenticated load.
func identify(r *http.Request) string {
	if actor, ok := requestcontext.ActorFrom(r.Context()); ok && actor.ID != "" {
		return actor.ID
	}
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return metadata.ClientIPFromRequest(r)
}

func writeBudgetHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
