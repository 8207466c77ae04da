package services

import (
	"sort"
	"strings"
)

// StationMatcher resolves free-text station names against an index built
// once per upload. Names it cannot resolve are remembered, not fatal.
type StationMatcher struct {
	index      map[string]int64
	unresolved map[string]struct{}
}

// NewStationMatcher wraps a lower(name) to id index
func NewStationMatcher(index map[string]int64) *StationMatcher {
	return &StationMatcher{
		index:      index,
		unresolved: make(map[string]struct{}),
	}
}

// Match looks name up case-insensitively
func (m *StationMatcher) Match(name string) (int64, bool) {
	trimmed := strings.TrimSpace(name)
	if id, ok := m.index[strings.ToLower(trimmed)]; ok {
		return id, true
	}
	m.unresolved[trimmed] = struct{}{}
	return 0, false
}

// Unresolved returns every distinct unmatched name, sorted.
func (m *StationMatcher) Unresolved() []string {
	if len(m.unresolved) == 0 {
		return nil
	}
	names := make([]string, 0, len(m.unresolved))
	for name := range m.unresolved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
