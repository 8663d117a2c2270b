package engine

import "strings"

// SkipSet is the immutable set of quest ids that are never started or claimed.
type SkipSet struct {
	ids map[string]struct{}
}

func NewSkipSet(ids ...string) SkipSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		m[id] = struct{}{}
	}
	return SkipSet{ids: m}
}

func (s SkipSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s SkipSet) Len() int { return len(s.ids) }
