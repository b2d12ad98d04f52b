// Package device turns raw User-Agent strings into short human-readable device
// summaries. Audit entries record the summary so privileged actions show
// "Chrome on Mac OS X" instead of a full UA string.
package device

import (
	"fmt"
	"net/http"

	"github.com/mssola/useragent"

	"canopy/pkg/requestcontext"
)

// Middleware parses the User-Agent header and stores the device summary in the
// request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary := ParseUserAgent(r.Header.Get("User-Agent"))
		ctx := requestcontext.WithDevice(r.Context(), summary)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseUserAgent produces a "<browser> on <platform>" display string.
// Unknown or empty agents return "Unknown Device".
func ParseUserAgent(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return fmt.Sprintf("%s on %s", browser, platform)
}
