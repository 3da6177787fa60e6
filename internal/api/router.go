package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// RouterConfig collects the handler groups the router dispatches to.
// Metrics is the Prometheus registry handler; nil disables the endpoint.
type RouterConfig struct {
	Questions  *QuestionHandlers
	Votes      *VoteHandlers
	TopList    *TopListHandlers
	Moderation *ModerationHandlers
	Updates    *UpdatesHandlers
	Health     *HealthHandlers
	Metrics    http.Handler
}

// NewRouter builds the ServeMux for the question ranking API. Paths under
// /contests/, /questions/ and /reports/ are dispatched by suffix and
// method; the handlers re-parse the id segment themselves.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	if cfg.Health != nil {
		mux.HandleFunc("/health", cfg.Health.Health)
		mux.HandleFunc("/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	mux.HandleFunc("/contests/", func(w http.ResponseWriter, r *http.Request) {
		routeContests(cfg, w, r)
	})
	mux.HandleFunc("/questions/", func(w http.ResponseWriter, r *http.Request) {
		routeQuestions(cfg, w, r)
	})
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		routeReports(cfg, w, r)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"hustings-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}

// pathSegments splits the path remainder after a prefix into non-empty
// segments, e.g. "/contests/abc/top" with "/contests/" yields [abc top].
func pathSegments(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func routeContests(cfg RouterConfig, w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/contests/")
	if len(segments) != 2 {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}

	switch segments[1] {
	case "questions":
		switch r.Method {
		case http.MethodPost:
			cfg.Questions.SubmitQuestion(w, r)
		case http.MethodGet:
			cfg.Questions.ListQuestions(w, r)
		default:
			writeMethodNotAllowed(w, r)
		}
	case "top":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, r)
			return
		}
		cfg.TopList.GetTopQuestions(w, r)
	case "reports":
		switch r.Method {
		case http.MethodPost:
			cfg.Moderation.FileReport(w, r)
		case http.MethodGet:
			cfg.Moderation.ListReports(w, r)
		default:
			writeMethodNotAllowed(w, r)
		}
	case "updates":
		if cfg.Updates == nil {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, r)
			return
		}
		cfg.Updates.SubscribeToContestUpdates(w, r)
	default:
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

func routeQuestions(cfg RouterConfig, w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/questions/")
	switch len(segments) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			cfg.Questions.GetQuestion(w, r)
		case http.MethodPatch:
			cfg.Questions.EditQuestion(w, r)
		default:
			writeMethodNotAllowed(w, r)
		}
	case 2:
		switch segments[1] {
		case "versions":
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Questions.ListVersions(w, r)
		case "vote":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Votes.CastVote(w, r)
		case "flag":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Moderation.FlagQuestion(w, r)
		case "approve":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Moderation.ApproveQuestion(w, r)
		case "remove":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Moderation.RemoveQuestion(w, r)
		case "merge":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Moderation.MergeQuestion(w, r)
		case "unmerge":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, r)
				return
			}
			cfg.Moderation.UnmergeQuestion(w, r)
		default:
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		}
	default:
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

func routeReports(cfg RouterConfig, w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/reports/")
	if len(segments) != 2 || segments[1] != "resolve" {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	cfg.Moderation.ResolveReport(w, r)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
}
