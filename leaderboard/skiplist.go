package leaderboard

import (
	"math/rand/v2"
	"sync"

	"gradekit/core"
)

const (
	maxLevel = 16
	// promote is the chance a node also appears on the next level up.
	promote = 0.25
)

type node struct {
	e    Entry
	next [maxLevel]*node
}

// SkipList orders entries by score descending, then student id ascending,
// giving O(log n) updates and O(n) prefix reads.
type SkipList struct {
	mu     sync.RWMutex
	head   *node
	levels int
	byID   map[core.StudentID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:   &node{},
		levels: 1,
		byID:   map[core.StudentID]*node{},
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (s *SkipList) randomLevel() int {
	n := 1
	for n < maxLevel && s.rng.Float64() < promote {
		n++
	}
	return n
}

// predecessors returns, per level, the last node ordered before e.
func (s *SkipList) predecessors(e Entry) [maxLevel]*node {
	var prev [maxLevel]*node
	cur := s.head
	for i := s.levels - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		prev[i] = cur
	}
	return prev
}

func less(a, b Entry) bool {
	if a.Score == b.Score {
		return a.Student < b.Student
	}
	return a.Score > b.Score
}

// Update inserts or moves student to a new score.
func (s *SkipList) Update(student core.StudentID, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[student]; ok {
		if old.e.Score == score {
			return
		}
		s.removeLocked(student, old.e)
	}
	e := Entry{Student: student, Score: score}
	prev := s.predecessors(e)
	height := s.randomLevel()
	for i := s.levels; i < height; i++ {
		prev[i] = s.head
	}
	s.levels = max(s.levels, height)

	n := &node{e: e}
	for i := range height {
		n.next[i] = prev[i].next[i]
		prev[i].next[i] = n
	}
	s.byID[student] = n
}

// removeLocked unlinks the node holding e. Callers hold mu.
func (s *SkipList) removeLocked(student core.StudentID, e Entry) {
	prev := s.predecessors(e)
	target := prev[0].next[0]
	if target == nil || target.e.Student != student {
		return
	}
	for i := range s.levels {
		if prev[i].next[i] == target {
			prev[i].next[i] = target.next[i]
		}
	}
	delete(s.byID, student)
	for s.levels > 1 && s.head.next[s.levels-1] == nil {
		s.levels--
	}
}

func (s *SkipList) Remove(student core.StudentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[student]; ok {
		s.removeLocked(student, n.e)
	}
}

// TopN returns the best n entries; n <= 0 returns the whole board.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.byID) {
		n = len(s.byID)
	}
	out := make([]Entry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out
}

func (s *SkipList) Get(student core.StudentID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byID[student]; ok {
		return n.e, true
	}
	return Entry{}, false
}

func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ Board = (*SkipList)(nil)
