package ratelimit

import (
	"net/http"

	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/metrics"
)

// ClientIDHeader carries the caller's client id
const ClientIDHeader = "X-Client-ID"

// Admission applies the endpoint gate and then the client quota to a route
type Admission struct {
	Endpoint EndpointLimiter
	Clients  ClientLimiter
	Logger   logging.Logger
	Metrics  *metrics.Metrics
}

// Middleware guards the wrapped handler for the (api, verb) endpoint.
// Throttled calls get 429, unconfigured clients 500 and store failures 503.
func (a *Admission) Middleware(api, verb string) func(http.Handler) http.Handler {
	logger := a.Logger
	if logger == nil {
		logger = logging.Component("admission")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.Endpoint != nil && !a.Endpoint.Consume() {
				a.Metrics.Decision("endpoint", metrics.ResultThrottled)
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			a.Metrics.Decision("endpoint", metrics.ResultAllowed)

			clientID := r.Header.Get(ClientIDHeader)
			allowed, err := a.Clients.Consume(r.Context(), api, verb, clientID)
			if err != nil {
				log := logger.WithContext(r.Context())
				if errors.IsType(err, errors.ErrTypeNotConfigured) {
					log.Error("No quota configured", err,
						logging.String("api", api),
						logging.String("verb", verb),
						logging.String("client_id", clientID),
					)
					http.Error(w, "Quota not configured", http.StatusInternalServerError)
					return
				}
				log.Error("Quota lookup failed", err,
					logging.String("api", api),
					logging.String("client_id", clientID),
				)
				http.Error(w, "Quota store unavailable", http.StatusServiceUnavailable)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
