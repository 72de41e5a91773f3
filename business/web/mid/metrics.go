package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/signchain/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set of counters shared by every web app of the process.
var (
	prometheusRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signchain",
		Subsystem: "web",
		Name:      "requests",
		Help:      "Number of requests handled",
	})

	prometheusErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signchain",
		Subsystem: "web",
		Name:      "errors",
		Help:      "Number of requests that returned an error",
	})

	prometheusPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signchain",
		Subsystem: "web",
		Name:      "panics",
		Help:      "Number of requests that panicked",
	})
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request and errors counters.
			prometheusRequests.Inc()
			if err != nil {
				prometheusErrors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
