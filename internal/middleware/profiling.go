package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingConfig configures the pprof middleware. Enabled is refused when
// Environment names a production deployment, whatever the flag says.
type ProfilingConfig struct {
	Enabled     bool
	Environment string
}

// Profiling exposes the runtime profiles under /debug/pprof/* when enabled.
// Disabled (or in production, where enabling is refused and logged), the
// middleware is a pass-through. /debug/pprof/status reports the current
// profiling configuration.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		if config.Environment == "production" || config.Environment == "prod" {
			slog.Error("refusing to enable profiling endpoints",
				"environment", config.Environment)
			return next
		}

		slog.Warn("profiling endpoints enabled",
			"environment", config.Environment,
			"endpoints", "/debug/pprof/*")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/debug/pprof") {
				next.ServeHTTP(w, r)
				return
			}
			switch r.URL.Path {
			case "/debug/pprof/cmdline":
				pprof.Cmdline(w, r)
			case "/debug/pprof/profile":
				pprof.Profile(w, r)
			case "/debug/pprof/symbol":
				pprof.Symbol(w, r)
			case "/debug/pprof/trace":
				pprof.Trace(w, r)
			case "/debug/pprof/status":
				ProfilingStatus(config)(w, r)
			default:
				// Index serves /debug/pprof/ and the named profiles
				// (heap, goroutine, block, mutex, allocs, threadcreate).
				pprof.Index(w, r)
			}
		})
	}
}

// profilingStatusResponse is the /debug/pprof/status payload.
type profilingStatusResponse struct {
	ProfilingEnabled bool     `json:"profiling_enabled"`
	Environment      string   `json:"environment"`
	Status           string   `json:"status"`
	Endpoints        []string `json:"endpoints"`
}

// ProfilingStatus returns a handler reporting whether profiling is exposed
// and where. Useful as a deploy-time check that production builds have it
// off.
func ProfilingStatus(config ProfilingConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "disabled"
		if config.Enabled {
			status = "enabled"
		}
		body, err := json.MarshalIndent(profilingStatusResponse{
			ProfilingEnabled: config.Enabled,
			Environment:      config.Environment,
			Status:           status,
			Endpoints: []string{
				"/debug/pprof/",
				"/debug/pprof/profile",
				"/debug/pprof/heap",
				"/debug/pprof/goroutine",
				"/debug/pprof/block",
				"/debug/pprof/mutex",
				"/debug/pprof/allocs",
				"/debug/pprof/trace",
			},
		}, "", "  ")
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			slog.Error("failed to write profiling status response", "error", err)
		}
	}
}
