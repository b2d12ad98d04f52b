package testutil

import (
	"net/http"

	"canopy/pkg/requestcontext"
)

// WithActor stamps an authenticated actor onto the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, userID, email, role string) *http.Request {
	actor := requestcontext.Actor{ID: userID, Email: email, Role: role}
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestID stamps a request ID onto the request context, as the
// metadata middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithClientMetadata stamps client IP and user agent onto the request context.
func WithClientMetadata(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
