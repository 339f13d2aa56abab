package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	wsadapter "gradekit/adapters/websocket"
	"gradekit/analytics"
	"gradekit/engine"
	"gradekit/leaderboard"
	"gradekit/realtime"
	"gradekit/users"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// Logger receives one line per request. Nil disables request logging.
	Logger *slog.Logger
	// EventBuffer is the per-connection event buffer of /ws. Zero uses the adapter default.
	EventBuffer int
	// Leaderboard and Metrics, when set, expose live subject boards and activity stats.
	Leaderboard *leaderboard.Tracker
	Metrics     *analytics.Metrics
	Reports     *analytics.Aggregator
}

type api struct {
	svc      *engine.GradeService
	accounts *users.Service
	board    *leaderboard.Tracker
	metrics  *analytics.Metrics
	reports  *analytics.Aggregator
}

// NewMux builds an http.Handler exposing the grade REST API and the WebSocket
// event stream. accounts and hub may be nil, which leaves their routes out.
//
// Routes (all under {prefix}):
//
//	GET    /healthz
//	GET    /ws?class=&student=&types=
//	POST   /students
//	DELETE /students/{id}
//	GET    /students/{id}/scores?scope=&term=&year=
//	GET    /students/{id}/scores/{subject}
//	PUT    /students/{id}/scores/{subject}
//	POST   /students/{id}/scoresets
//	GET    /students/{id}/subjects
//	GET    /classes
//	GET    /classes/{class}/subjects
//	GET    /classes/{class}/subjects/{subject}/scores?order=
//	GET    /classes/{class}/subjects/{subject}/statistics
//	GET    /classes/{class}/subjects/{subject}/summary
//	GET    /classes/{class}/subjects/{subject}/ranking
//	GET    /subjects/{subject}/threshold?score=&direction=
//	GET    /subjects/{subject}/leaderboard?n=
//	GET    /leaderboards
//	GET    /stats?day=, /stats/reports
//	POST   /auth/login
//	GET    /users, POST /users, GET|DELETE /users/{username}
//	GET    /users/by-student/{id}, /users/by-name/{name}, /admins
func NewMux(svc *engine.GradeService, accounts *users.Service, hub *realtime.Hub, opts Options) http.Handler {
	if svc == nil {
		panic("httpapi.NewMux requires a grade service")
	}
	a := &api{svc: svc, accounts: accounts, board: opts.Leaderboard, metrics: opts.Metrics, reports: opts.Reports}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if opts.Logger != nil {
		r.Use(requestLogger(opts.Logger))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 {
		r.Use(rateLimit(opts.RateLimitRPM, time.Minute))
	}
	if opts.AllowCORSOrigin != "" {
		r.Use(cors(opts.AllowCORSOrigin))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", a.healthCheck)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(apiKeyAuth(opts.APIKeys))
			}
			if hub != nil {
				r.Handle("/ws", wsadapter.Handler(hub, wsOptions(opts)))
			}

			r.Post("/students", a.enrollStudent)
			r.Route("/students/{id}", func(r chi.Router) {
				r.Delete("/", a.removeStudent)
				r.Get("/scores", a.scoresForStudent)
				r.Get("/scores/{subject}", a.scoreForSubject)
				r.Put("/scores/{subject}", a.updateScore)
				r.Post("/scoresets", a.addScoreSet)
				r.Get("/subjects", a.subjectsForStudent)
			})

			r.Get("/classes", a.classesList)
			r.Get("/classes/{class}/subjects", a.subjectsForClass)
			r.Route("/classes/{class}/subjects/{subject}", func(r chi.Router) {
				r.Get("/scores", a.classScores)
				r.Get("/statistics", a.classStatistics)
				r.Get("/summary", a.classSummary)
				r.Get("/ranking", a.classRanking)
			})
			r.Get("/subjects/{subject}/threshold", a.thresholdQuery)

			if a.board != nil {
				r.Get("/leaderboards", a.leaderboards)
				r.Get("/subjects/{subject}/leaderboard", a.subjectLeaderboard)
			}
			if a.metrics != nil {
				r.Get("/stats", a.stats)
				r.Get("/stats/reports", a.statsReports)
			}

			if accounts != nil {
				r.Post("/auth/login", a.login)
				r.Get("/admins", a.listAdmins)
				r.Route("/users", func(r chi.Router) {
					r.Get("/", a.listUsers)
					r.Post("/", a.createUser)
					r.Get("/by-student/{id}", a.userByStudent)
					r.Get("/by-name/{name}", a.userByName)
					r.Get("/{username}", a.getTeacher)
					r.Delete("/{username}", a.deleteUser)
				})
			}
		})
	}
	if prefix := strings.TrimRight(opts.PathPrefix, "/"); prefix != "" {
		r.Route(prefix, routes)
	} else {
		routes(r)
	}
	return r
}

func wsOptions(opts Options) wsadapter.Options {
	return wsadapter.Options{Buffer: opts.EventBuffer}
}

// healthCheck probes the store with a cheap read.
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	if _, err := a.svc.ClassesList(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
		_ = json.NewEncoder(w).Encode(status)
		return
	}
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}
