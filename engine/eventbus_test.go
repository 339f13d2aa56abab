package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gradekit/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventScoreUpdated, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewScoreUpdated("S1", core.Term{Year: 2024, Semester: 1}, "math", 90))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventScoreSetAdded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewScoreSetAdded("S1", core.Term{Year: 2024, Semester: 1}, nil))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var count int32
	unsub := bus.SubscribeAll(func(ctx context.Context, e core.Event) { atomic.AddInt32(&count, 1) })
	bus.Publish(context.Background(), core.NewStudentEnrolled(core.Student{ID: "S1", Class: "10A"}))
	bus.Publish(context.Background(), core.NewStudentRemoved("S1"))
	unsub()
	bus.Publish(context.Background(), core.NewStudentRemoved("S1"))
	if got := atomic.LoadInt32(&count); got != 2 {
		t.Fatalf("want 2 got %d", got)
	}
}

func TestEventBusCloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	bus.Close()
	bus.Close()
}

func TestEventBusAsyncKeepsPerStudentOrder(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	term := core.Term{Year: 2024, Semester: 1}
	var mu sync.Mutex
	seen := map[core.StudentID][]int{}
	bus.Subscribe(core.EventScoreUpdated, func(ctx context.Context, e core.Event) {
		mu.Lock()
		seen[e.Student] = append(seen[e.Student], e.Scores[0].Score)
		mu.Unlock()
	})

	students := []core.StudentID{"S1", "S2", "S3", "S4", "S5"}
	for i := 0; i < 50; i++ {
		for _, id := range students {
			bus.Publish(context.Background(), core.NewScoreUpdated(id, term, "math", i))
		}
	}
	bus.Close()

	for _, id := range students {
		got := seen[id]
		if len(got) != 50 {
			t.Fatalf("%s: want 50 events got %d", id, len(got))
		}
		for i, score := range got {
			if score != i {
				t.Fatalf("%s: event %d carried score %d, out of order", id, i, score)
			}
		}
	}
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var calls int32
	bus.Subscribe(core.EventStudentRemoved, func(ctx context.Context, e core.Event) {
		atomic.AddInt32(&calls, 1)
		panic("boom")
	})
	bus.Publish(context.Background(), core.NewStudentRemoved("S1"))
	bus.Publish(context.Background(), core.NewStudentRemoved("S1"))
	bus.Close()
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("worker died after panic: want 2 calls got %d", got)
	}

	syncBus := NewEventBus(DispatchSync)
	syncBus.Subscribe(core.EventStudentRemoved, func(ctx context.Context, e core.Event) { panic("boom") })
	syncBus.Publish(context.Background(), core.NewStudentRemoved("S2"))
}
