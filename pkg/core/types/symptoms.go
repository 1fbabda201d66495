package types

import (
	"encoding/json"
	"strings"
)

// SymptomSet is a duplicate-free collection of free-text symptoms.
// The zero value is ready to use.
type SymptomSet struct {
	items []string
	seen  map[string]struct{}
}

// NewSymptomSet creates a set holding symptoms.
func NewSymptomSet(symptoms ...string) SymptomSet {
	var s SymptomSet
	s.Add(symptoms...)
	return s
}

// Add inserts symptoms, ignoring blanks and case-insensitive duplicates.
// It returns the number of symptoms that were new.
func (s *SymptomSet) Add(symptoms ...string) int {
	added := 0
	for _, raw := range symptoms {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if s.seen == nil {
			s.seen = make(map[string]struct{})
		}
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, item)
		added++
	}
	return added
}

// Contains reports whether symptom is in the set.
func (s SymptomSet) Contains(symptom string) bool {
	_, ok := s.seen[strings.ToLower(strings.TrimSpace(symptom))]
	return ok
}

// Len returns the number of symptoms.
func (s SymptomSet) Len() int {
	return len(s.items)
}

// List returns the symptoms in insertion order.
func (s SymptomSet) List() []string {
	return append([]string(nil), s.items...)
}

// Clone returns an independent copy.
func (s SymptomSet) Clone() SymptomSet {
	return NewSymptomSet(s.items...)
}

// MarshalJSON encodes the set as a JSON array.
func (s SymptomSet) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON decodes a JSON array into the set.
func (s *SymptomSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSymptomSet(items...)
	return nil
}
