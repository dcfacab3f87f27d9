// Package match finds configured trigger phrases in text.
package match

import "strings"

// Matcher does case-insensitive substring search over an ordered trigger set.
// It is immutable and safe for concurrent use.
type Matcher struct {
	triggers []string
	lower    []string
}

// New keeps triggers in order and drops blank ones.
func New(triggers []string) *Matcher {
	m := &Matcher{}
	for _, t := range triggers {
		if strings.TrimSpace(t) == "" {
			continue
		}
		m.triggers = append(m.triggers, t)
		m.lower = append(m.lower, strings.ToLower(t))
	}
	return m
}

// Find returns the first trigger, in configured order, contained in text.
func (m *Matcher) Find(text string) (string, bool) {
	if m == nil || text == "" {
		return "", false
	}
	lt := strings.ToLower(text)
	for i, t := range m.lower {
		if strings.Contains(lt, t) {
			return m.triggers[i], true
		}
	}
	return "", false
}

func (m *Matcher) Triggers() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.triggers...)
}

func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.triggers)
}
