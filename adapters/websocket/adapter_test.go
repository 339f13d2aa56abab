package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"gradekit/core"
	"gradekit/realtime"
)

func dial(t *testing.T, hub *realtime.Hub, query string) *gorillaws.Conn {
	t.Helper()
	server := httptest.NewServer(Handler(hub, Options{}))
	t.Cleanup(server.Close)

	wsURL := "ws" + server.URL[len("http"):] + "/?" + query // convert http->ws
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	conn := dial(t, hub, "")

	ev := core.NewScoreUpdated("S1", core.Term{Year: 2024, Semester: 1}, "math", 88)
	hub.Broadcast(context.Background(), ev)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.Student != "S1" || received.Scores[0].Score != 88 {
		t.Fatalf("unexpected event: %+v", received)
	}
}

func TestHandlerAppliesClassFilter(t *testing.T) {
	hub := realtime.NewHub()
	conn := dial(t, hub, "class=10B")

	other := core.NewStudentEnrolled(core.Student{ID: "S1", Class: "10A"})
	mine := core.NewStudentEnrolled(core.Student{ID: "S3", Class: "10B"})
	hub.Broadcast(context.Background(), other)
	hub.Broadcast(context.Background(), mine)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.Student != "S3" {
		t.Fatalf("expected only the 10B event, got %+v", received)
	}
}

func TestFilterFromQuery(t *testing.T) {
	f := FilterFromQuery(url.Values{"student": {" S1 "}, "types": {"score_updated, score_set_added,"}})
	if f.Student != "S1" || f.Class != "" {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if len(f.Types) != 2 || f.Types[1] != core.EventScoreSetAdded {
		t.Fatalf("unexpected types: %v", f.Types)
	}
}
