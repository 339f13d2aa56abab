package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"gradekit/aggregate"
	"gradekit/core"
	"gradekit/users"
)

const maxBodyBytes = 1 << 20

// param returns the unescaped URL parameter.
// param returns a decoded path parameter. chi matches on RawPath when the
// request carried escapes Path cannot hold (such as %2F), and only then is
// the value still encoded.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", err.Error())
		return false
	}
	return true
}

// parseScope reads ?scope=latest|term|year with ?term=<year>-<semester> or
// ?year=. A term or year without an explicit scope selects that scope.
func parseScope(q url.Values) (core.Scope, error) {
	kind := strings.ToLower(strings.TrimSpace(q.Get("scope")))
	term, year := q.Get("term"), q.Get("year")
	if kind == "" {
		switch {
		case term != "":
			kind = "term"
		case year != "":
			kind = "year"
		default:
			kind = "latest"
		}
	}
	switch kind {
	case "latest":
		return core.LatestScope(), nil
	case "term":
		if term == "" {
			return core.Scope{}, fmt.Errorf("%w: term scope needs ?term=<year>-<semester>", core.ErrValidation)
		}
		t, err := core.ParseTerm(term)
		if err != nil {
			return core.Scope{}, err
		}
		return core.TermScope(t), nil
	case "year":
		y, err := strconv.Atoi(year)
		if err != nil {
			return core.Scope{}, fmt.Errorf("%w: year %q", core.ErrValidation, year)
		}
		s := core.YearScope(y)
		return s, s.Validate()
	default:
		return core.Scope{}, fmt.Errorf("%w: unknown scope %q", core.ErrValidation, kind)
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, core.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "student_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case core.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

func (a *api) enrollStudent(w http.ResponseWriter, r *http.Request) {
	var st core.Student
	if !decodeBody(w, r, &st) {
		return
	}
	if err := a.svc.EnrollStudent(r.Context(), st); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, st)
}

func (a *api) removeStudent(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RemoveStudent(r.Context(), core.StudentID(param(r, "id"))); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) scoresForStudent(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	scores, err := a.svc.ScoresForStudent(r.Context(), core.StudentID(param(r, "id")), scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, scores)
}

func (a *api) scoreForSubject(w http.ResponseWriter, r *http.Request) {
	scores, err := a.svc.ScoreForSubject(r.Context(), core.StudentID(param(r, "id")), core.Subject(param(r, "subject")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, scores)
}

type updateScoreRequest struct {
	Score *int       `json:"score"`
	Term  *core.Term `json:"term,omitempty"`
}

func (a *api) updateScore(w http.ResponseWriter, r *http.Request) {
	var req updateScoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "score is required", nil)
		return
	}
	id, subject := core.StudentID(param(r, "id")), core.Subject(param(r, "subject"))
	var err error
	if req.Term != nil {
		err = a.svc.UpdateScoreInTerm(r.Context(), id, subject, *req.Score, *req.Term)
	} else {
		err = a.svc.UpdateScore(r.Context(), id, subject, *req.Score)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

type scoreSetRequest struct {
	Term   core.Term     `json:"term"`
	Scores core.ScoreSet `json:"scores"`
}

func (a *api) addScoreSet(w http.ResponseWriter, r *http.Request) {
	var req scoreSetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.svc.AddScoreSet(r.Context(), core.StudentID(param(r, "id")), req.Scores, req.Term); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"ok": true})
}

func (a *api) subjectsForStudent(w http.ResponseWriter, r *http.Request) {
	subjects, err := a.svc.SubjectsForStudent(r.Context(), core.StudentID(param(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, subjects)
}

func (a *api) classesList(w http.ResponseWriter, r *http.Request) {
	classes, err := a.svc.ClassesList(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, classes)
}

func (a *api) subjectsForClass(w http.ResponseWriter, r *http.Request) {
	subjects, err := a.svc.SubjectsForClass(r.Context(), core.ClassName(param(r, "class")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, subjects)
}

// classSubject reads the {class}/{subject} pair and the scope.
func classSubject(r *http.Request) (core.ClassName, core.Subject, core.Scope, error) {
	scope, err := parseScope(r.URL.Query())
	return core.ClassName(param(r, "class")), core.Subject(param(r, "subject")), scope, err
}

func (a *api) classScores(w http.ResponseWriter, r *http.Request) {
	class, subject, scope, err := classSubject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	order, err := aggregate.ParseOrder(r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order", err.Error(), nil)
		return
	}
	entries, err := a.svc.ClassScoresForSubject(r.Context(), class, subject, scope, order)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (a *api) classStatistics(w http.ResponseWriter, r *http.Request) {
	class, subject, scope, err := classSubject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	buckets, err := a.svc.ClassSubjectStatistics(r.Context(), class, subject, scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, buckets)
}

func (a *api) classSummary(w http.ResponseWriter, r *http.Request) {
	class, subject, scope, err := classSubject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	summary, err := a.svc.ClassSubjectSummary(r.Context(), class, subject, scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, summary)
}

func (a *api) classRanking(w http.ResponseWriter, r *http.Request) {
	class, subject, scope, err := classSubject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ranking, err := a.svc.ClassSubjectRanking(r.Context(), class, subject, scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, ranking)
}

// thresholdQuery serves ?score=<n>&direction=above|below. Direction defaults to above.
func (a *api) thresholdQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	threshold, err := strconv.Atoi(q.Get("score"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_threshold", "score must be an integer", nil)
		return
	}
	dir := aggregate.Above
	if d := q.Get("direction"); d != "" {
		if dir, err = aggregate.ParseDirection(d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_direction", err.Error(), nil)
			return
		}
	}
	scope, err := parseScope(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	scores, err := a.svc.ThresholdQuery(r.Context(), core.Subject(param(r, "subject")), threshold, dir, scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, scores)
}
