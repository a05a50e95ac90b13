package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JaimeStill/kisaanseva/pkg/metrics"
)

// Metrics records request counts and latencies labelled by the matched mux
// pattern, so path parameters do not inflate label cardinality.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)

			next.ServeHTTP(rec, r)

			pattern := route(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
