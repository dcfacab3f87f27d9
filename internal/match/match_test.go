package match

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var triggers = []string{"WTS", "WTB", "for sale", "DM to buy", "selling"}

func TestFind(t *testing.T) {
	m := New(triggers)

	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"Selling my pair, DM to buy", "DM to buy", true},
		{"wts: size 10", "WTS", true},
		{"these are FOR SALE", "for sale", true},
		{"just chatting", "", false},
		{"", "", false},
		{"selling and wtb", "WTB", true},
	}
	for _, tc := range cases {
		got, ok := m.Find(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestNewDropsBlankTriggers(t *testing.T) {
	m := New([]string{"", "  ", "wts"})
	assert.Equal(t, []string{"wts"}, m.Triggers())
	assert.Equal(t, 1, m.Len())

	_, ok := New(nil).Find("anything")
	assert.False(t, ok)
}

func TestTriggersIsCopy(t *testing.T) {
	m := New([]string{"a"})
	ts := m.Triggers()
	ts[0] = "b"
	assert.Equal(t, []string{"a"}, m.Triggers())
}

func TestFindProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ts := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z ]{1,6}`), 1, 5).Draw(t, "triggers")
		text := rapid.StringMatching(`[a-zA-Z ]{0,40}`).Draw(t, "text")
		m := New(ts)

		got, ok := m.Find(text)

		want, wantOK := "", false
		if text != "" {
			for _, k := range ts {
				if strings.TrimSpace(k) == "" {
					continue
				}
				if strings.Contains(strings.ToLower(text), strings.ToLower(k)) {
					want, wantOK = k, true
					break
				}
			}
		}
		if ok != wantOK || got != want {
			t.Fatalf("Find(%q) = %q,%v; want %q,%v", text, got, ok, want, wantOK)
		}
	})
}

func TestFindContainedTriggerAlwaysMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "trigger")
		prefix := rapid.StringMatching(`[a-z ]{0,10}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-z ]{0,10}`).Draw(t, "suffix")

		got, ok := New([]string{k}).Find(prefix + strings.ToUpper(k) + suffix)
		if !ok || got != k {
			t.Fatalf("expected %q to match", k)
		}
	})
}
