package leaderboard

import (
	"testing"

	"gradekit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(core.StudentID("a"), 10)
	s.Update(core.StudentID("b"), 20)
	s.Update(core.StudentID("c"), 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].Student != "b" || top[1].Student != "c" || top[2].Student != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(core.StudentID("a"), 25)
	top = s.TopN(1)
	if top[0].Student != "a" {
		t.Fatalf("top should be a, got %#v", top)
	}
}

func TestSkipListTiesAndRemove(t *testing.T) {
	s := NewSkipList()
	for _, id := range []core.StudentID{"d", "b", "c", "a"} {
		s.Update(id, 80)
	}
	top := s.TopN(0)
	if len(top) != 4 || top[0].Student != "a" || top[3].Student != "d" {
		t.Fatalf("ties should order by student id: %#v", top)
	}
	s.Remove("b")
	s.Remove("zz")
	if s.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", s.Len())
	}
	if _, ok := s.Get("b"); ok {
		t.Fatal("b should be gone")
	}
	if e, ok := s.Get("c"); !ok || e.Score != 80 {
		t.Fatalf("unexpected entry for c: %#v", e)
	}
}
