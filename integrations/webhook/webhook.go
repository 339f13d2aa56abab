package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gradekit/core"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Gradekit-Signature"

// Config describes the webhook endpoints fed by score events.
type Config struct {
	Endpoints []string         `json:"endpoints" yaml:"endpoints" env:"ENDPOINTS"`
	Secret    string           `json:"secret,omitempty" yaml:"secret" env:"SECRET"`
	Timeout   time.Duration    `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	Events    []core.EventType `json:"events,omitempty" yaml:"events" env:"EVENTS"`
}

// Sink posts domain events to configured HTTP endpoints.
// It is synchronous; run it behind an async event bus to keep writers fast.
type Sink struct {
	client    *http.Client
	endpoints []string
	secret    []byte
	events    map[core.EventType]bool
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSecret signs every body with HMAC-SHA256.
func WithSecret(secret string) Option {
	return func(s *Sink) { s.secret = []byte(secret) }
}

// WithEvents restricts delivery to the given event types.
func WithEvents(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) == 0 {
			return
		}
		s.events = map[core.EventType]bool{}
		for _, t := range types {
			s.events[t] = true
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// FromConfig builds a sink from configuration.
func FromConfig(cfg Config, opts ...Option) *Sink {
	base := []Option{WithSecret(cfg.Secret), WithEvents(cfg.Events...)}
	if cfg.Timeout > 0 {
		base = append(base, WithClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return New(cfg.Endpoints, append(base, opts...)...)
}

// OnEvent posts the event JSON to all endpoints. Failures are logged and do
// not stop delivery to the remaining endpoints.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 || (s.events != nil && !s.events[e.Type]) {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.log.ErrorContext(ctx, "webhook encode failed", "event", e.Type, "error", err)
		return
	}
	for _, ep := range s.endpoints {
		if err := s.post(ctx, ep, body); err != nil {
			s.log.WarnContext(ctx, "webhook delivery failed", "endpoint", ep, "event", e.Type, "error", err)
		}
	}
}

func (s *Sink) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(s.secret, body))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
