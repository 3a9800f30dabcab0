package router

import (
	"net/http"
	"strings"

	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/uid"
)

const (
	// HeaderCorrelationID tracks a request across services.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is the proxy-flavored spelling of the same idea.
	HeaderRequestID = "X-Request-ID"
)

const maxCorrelationIDLen = 128

// middlewareCorrelationID adopts the caller's correlation id when it is sane,
// mints one otherwise, and reflects the final value back in the response.
func middlewareCorrelationID(gen uid.StringID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cid := resolveCID(r, gen); cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				r = r.WithContext(instrument.SetCorrelationID(r.Context(), cid))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveCID prefers the canonical header, then the proxy spelling, then
// a freshly minted id.
func resolveCID(r *http.Request, gen uid.StringID) string {
	for _, h := range []string{HeaderCorrelationID, HeaderRequestID} {
		if cid := sanitizeCID(r.Header.Get(h)); cid != "" {
			return cid
		}
	}

	if gen != nil {
		return gen.Generate()
	}

	return ""
}

// sanitizeCID rejects header-splitting attempts and trims oversized values.
func sanitizeCID(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		return ""
	}

	v = strings.TrimSpace(v)
	if len(v) > maxCorrelationIDLen {
		v = v[:maxCorrelationIDLen]
	}

	return v
}
