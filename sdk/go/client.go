package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gradekit/aggregate"
	"gradekit/core"
	"gradekit/leaderboard"
	"gradekit/users"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the gradekit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &hs)
	return hs, err
}

// EnrollStudent creates or updates a student's enrollment.
func (c *Client) EnrollStudent(ctx context.Context, st core.Student) error {
	if strings.TrimSpace(string(st.ID)) == "" {
		return ErrEmptyStudentID
	}
	return c.do(ctx, http.MethodPost, "/students", nil, st, nil)
}

// RemoveStudent drops a student and all of its scores.
func (c *Client) RemoveStudent(ctx context.Context, id core.StudentID) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrEmptyStudentID
	}
	return c.do(ctx, http.MethodDelete, "/students/"+seg(id), nil, nil, nil)
}

// ScoresForStudent returns one score per subject under scope.
func (c *Client) ScoresForStudent(ctx context.Context, id core.StudentID, scope core.Scope) (map[core.Subject]int, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrEmptyStudentID
	}
	var out map[core.Subject]int
	err := c.do(ctx, http.MethodGet, "/students/"+seg(id)+"/scores", scopeQuery(scope), nil, &out)
	return out, err
}

// ScoreForSubject returns the student's latest score in subject.
func (c *Client) ScoreForSubject(ctx context.Context, id core.StudentID, subject core.Subject) (map[core.Subject]int, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrEmptyStudentID
	}
	var out map[core.Subject]int
	err := c.do(ctx, http.MethodGet, "/students/"+seg(id)+"/scores/"+seg(subject), nil, nil, &out)
	return out, err
}

// SubjectsForStudent lists the subjects the student has scores in.
func (c *Client) SubjectsForStudent(ctx context.Context, id core.StudentID) ([]core.Subject, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrEmptyStudentID
	}
	var out []core.Subject
	err := c.do(ctx, http.MethodGet, "/students/"+seg(id)+"/subjects", nil, nil, &out)
	return out, err
}

// AddScoreSet writes a batch of scores for one term. Nothing is written if any entry is rejected.
func (c *Client) AddScoreSet(ctx context.Context, id core.StudentID, set core.ScoreSet, term core.Term) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrEmptyStudentID
	}
	body := struct {
		Term   core.Term     `json:"term"`
		Scores core.ScoreSet `json:"scores"`
	}{term, set}
	return c.do(ctx, http.MethodPost, "/students/"+seg(id)+"/scoresets", nil, body, nil)
}

// UpdateScore sets one subject score in the term the server picks.
func (c *Client) UpdateScore(ctx context.Context, id core.StudentID, subject core.Subject, score int) error {
	return c.updateScore(ctx, id, subject, score, nil)
}

// UpdateScoreInTerm sets one subject score in an explicit term.
func (c *Client) UpdateScoreInTerm(ctx context.Context, id core.StudentID, subject core.Subject, score int, term core.Term) error {
	return c.updateScore(ctx, id, subject, score, &term)
}

func (c *Client) updateScore(ctx context.Context, id core.StudentID, subject core.Subject, score int, term *core.Term) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrEmptyStudentID
	}
	body := struct {
		Score int        `json:"score"`
		Term  *core.Term `json:"term,omitempty"`
	}{score, term}
	return c.do(ctx, http.MethodPut, "/students/"+seg(id)+"/scores/"+seg(subject), nil, body, nil)
}

func (c *Client) ClassesList(ctx context.Context) ([]core.ClassName, error) {
	var out []core.ClassName
	err := c.do(ctx, http.MethodGet, "/classes", nil, nil, &out)
	return out, err
}

func (c *Client) SubjectsForClass(ctx context.Context, class core.ClassName) ([]core.Subject, error) {
	var out []core.Subject
	err := c.do(ctx, http.MethodGet, "/classes/"+seg(class)+"/subjects", nil, nil, &out)
	return out, err
}

// ClassScoresForSubject lists the class's scores in order.
func (c *Client) ClassScoresForSubject(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope, order aggregate.Order) ([]aggregate.Entry[core.StudentID], error) {
	q := scopeQuery(scope)
	q.Set("order", order.String())
	var out []aggregate.Entry[core.StudentID]
	err := c.do(ctx, http.MethodGet, classSubjectPath(class, subject, "scores"), q, nil, &out)
	return out, err
}

// ClassSubjectStatistics returns the grade band distribution of the class.
func (c *Client) ClassSubjectStatistics(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) ([]aggregate.Bucket, error) {
	var out []aggregate.Bucket
	err := c.do(ctx, http.MethodGet, classSubjectPath(class, subject, "statistics"), scopeQuery(scope), nil, &out)
	return out, err
}

func (c *Client) ClassSubjectSummary(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) (aggregate.Summary, error) {
	var out aggregate.Summary
	err := c.do(ctx, http.MethodGet, classSubjectPath(class, subject, "summary"), scopeQuery(scope), nil, &out)
	return out, err
}

func (c *Client) ClassSubjectRanking(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) ([]aggregate.Position[core.StudentID], error) {
	var out []aggregate.Position[core.StudentID]
	err := c.do(ctx, http.MethodGet, classSubjectPath(class, subject, "ranking"), scopeQuery(scope), nil, &out)
	return out, err
}

// ThresholdQuery returns the students strictly above or below threshold in subject.
func (c *Client) ThresholdQuery(ctx context.Context, subject core.Subject, threshold int, dir aggregate.Direction, scope core.Scope) (map[core.StudentID]int, error) {
	q := scopeQuery(scope)
	q.Set("score", strconv.Itoa(threshold))
	q.Set("direction", dir.String())
	var out map[core.StudentID]int
	err := c.do(ctx, http.MethodGet, "/subjects/"+seg(subject)+"/threshold", q, nil, &out)
	return out, err
}

// SubjectLeaderboard returns the top n students of subject by their latest score.
// n <= 0 returns the whole board. Servers without analytics answer 404.
func (c *Client) SubjectLeaderboard(ctx context.Context, subject core.Subject, n int) ([]leaderboard.Entry, error) {
	q := url.Values{"n": {strconv.Itoa(max(n, 0))}}
	var out struct {
		Entries []leaderboard.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/subjects/"+seg(subject)+"/leaderboard", q, nil, &out)
	return out.Entries, err
}

// Login checks credentials and returns the account.
func (c *Client) Login(ctx context.Context, username, password string, role core.Role) (core.User, error) {
	if strings.TrimSpace(username) == "" {
		return core.User{}, ErrEmptyUsername
	}
	body := map[string]any{"username": username, "password": password, "role": role}
	var u core.User
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &u)
	return u, err
}

func (c *Client) CreateUser(ctx context.Context, in users.NewUser) (core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodPost, "/users", nil, in, &u)
	return u, err
}

func (c *Client) DeleteUser(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return ErrEmptyUsername
	}
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(username), nil, nil, nil)
}

// EventFilter narrows the event stream. Zero fields match anything.
type EventFilter struct {
	Class   core.ClassName
	Student core.StudentID
	Types   []core.EventType
}

func (f EventFilter) query() url.Values {
	q := url.Values{}
	if f.Class != "" {
		q.Set("class", string(f.Class))
	}
	if f.Student != "" {
		q.Set("student", string(f.Student))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	return q
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	target := c.wsURL
	if q := filter.query(); len(q) > 0 {
		target += "?" + q.Encode()
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var payload *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func seg[T ~string](s T) string { return url.PathEscape(string(s)) }

func classSubjectPath(class core.ClassName, subject core.Subject, leaf string) string {
	return "/classes/" + seg(class) + "/subjects/" + seg(subject) + "/" + leaf
}

func scopeQuery(s core.Scope) url.Values {
	q := url.Values{}
	switch s.Kind {
	case core.ScopeTerm:
		q.Set("scope", "term")
		q.Set("term", s.Term.String())
	case core.ScopeYear:
		q.Set("scope", "year")
		q.Set("year", strconv.Itoa(s.Year))
	}
	return q
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
