package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"gradekit/core"
	"gradekit/realtime"
)

// Options tunes the event stream.
type Options struct {
	// Buffer is the per-connection event buffer (default 256).
	Buffer int
	// PingInterval keeps idle connections alive (default 30s).
	PingInterval time.Duration
	// WriteTimeout bounds each frame write (default 5s).
	WriteTimeout time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return o
}

// FilterFromQuery reads ?class=, ?student= and a comma separated ?types=.
func FilterFromQuery(q url.Values) realtime.Filter {
	f := realtime.Filter{
		Class:   core.ClassName(strings.TrimSpace(q.Get("class"))),
		Student: core.StudentID(strings.TrimSpace(q.Get("student"))),
	}
	for _, t := range strings.Split(q.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Types = append(f.Types, core.EventType(t))
		}
	}
	return f
}

// Handler returns an http.Handler that upgrades to WebSocket and streams the
// hub's score events matching the request's filter.
func Handler(hub *realtime.Hub, opts Options) http.Handler {
	opts = opts.withDefaults()
	upgrader := gorillaws.Upgrader{CheckOrigin: opts.CheckOrigin}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := FilterFromQuery(r.URL.Query())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(opts.Buffer, filter)
		defer hub.Unsubscribe(id)

		// the read loop only notices the client going away
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(opts.PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(gorillaws.PingMessage, nil, time.Now().Add(opts.WriteTimeout)); err != nil {
					return
				}
			}
		}
	})
}
