// Package alert turns a matched feed event into a notification message.
package alert

import (
	"strings"

	"commentwatch/internal/feed"
)

const (
	DefaultLinkBase = "https://www.reddit.com"

	previewRaw = 800
	previewMax = 500
)

// Alert is built per match and discarded after sending.
type Alert struct {
	EventID string
	Kind    string
	Source  string
	Channel string
	Author  string
	Trigger string
	Preview string
	URL     string
}

// New builds an alert for ev. linkBase is prepended to the event permalink.
func New(ev feed.Event, source, trigger, linkBase string) Alert {
	if linkBase == "" {
		linkBase = DefaultLinkBase
	}
	author := ev.Author
	if author == "" {
		author = "[deleted]"
	}
	kind := ev.Kind
	if kind == "" {
		kind = "comment"
	}
	return Alert{
		EventID: ev.ID,
		Kind:    kind,
		Source:  source,
		Channel: ev.Channel,
		Author:  author,
		Trigger: trigger,
		Preview: Preview(ev.Body),
		URL:     strings.TrimRight(linkBase, "/") + ev.Permalink,
	}
}

// Preview cuts body to 800 characters, collapses newlines to spaces, then
// cuts to 500.
func Preview(body string) string {
	s := truncateRunes(body, previewRaw)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return truncateRunes(s, previewMax)
}

// Text renders the message sent to the sink.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString("🚨 New ")
	if a.Source != "" {
		b.WriteString(a.Source)
		b.WriteString(" ")
	}
	b.WriteString(a.Kind)
	b.WriteString(" mentioning **")
	b.WriteString(a.Trigger)
	b.WriteString("** in r/")
	b.WriteString(a.Channel)
	b.WriteString("\nAuthor: u/")
	b.WriteString(a.Author)
	b.WriteString("\nLink: ")
	b.WriteString(a.URL)
	b.WriteString("\n\n> ")
	b.WriteString(a.Preview)
	return b.String()
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
