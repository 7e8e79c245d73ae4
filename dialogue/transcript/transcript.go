// Package transcript records a dialogue as ordered entries and exports it
// as Markdown, plain text or JSON.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a transcript entry.
type Kind string

// Entry kinds.
const (
	KindSystem   Kind = "system"
	KindAnalyst  Kind = "analyst"
	KindReviewer Kind = "reviewer"
	KindError    Kind = "error"
)

// Agent display labels used in exports and the terminal UI.
const (
	AnalystLabel  = "Agent 1"
	ReviewerLabel = "Agent 2"
)

// Entry is one line of the dialogue log.
type Entry struct {
	Kind         Kind          `json:"kind"`
	Round        int           `json:"round,omitempty"`
	Agent        string        `json:"agent,omitempty"`
	Model        string        `json:"model,omitempty"`
	Content      string        `json:"content"`
	Time         time.Time     `json:"time"`
	Elapsed      time.Duration `json:"elapsed,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
}

// Transcript is the exportable record of one dialogue session.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	Prompt    string    `json:"prompt"`
	Analyst   string    `json:"analyst"`
	Reviewer  string    `json:"reviewer"`
	Rounds    int       `json:"rounds"`
	Started   time.Time `json:"started"`
	Entries   []Entry   `json:"entries"`
}

// Add appends e. A zero Time is set to now.
func (t *Transcript) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	t.Entries = append(t.Entries, e)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.Entries)
}

// Last returns the most recent entry of kind k.
func (t *Transcript) Last(k Kind) (Entry, bool) {
	for i := len(t.Entries) - 1; i >= 0; i-- {
		if t.Entries[i].Kind == k {
			return t.Entries[i], true
		}
	}
	return Entry{}, false
}

// Turns counts the agent responses recorded so far.
func (t *Transcript) Turns() int {
	n := 0
	for _, e := range t.Entries {
		if e.Kind == KindAnalyst || e.Kind == KindReviewer {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t *Transcript) Clone() *Transcript {
	if t == nil {
		return nil
	}
	c := *t
	c.Entries = append([]Entry(nil), t.Entries...)
	return &c
}

// Line renders an entry the way it is shown live: agent responses are
// prefixed with the agent label and errors with a cross mark.
func (e Entry) Line() string {
	switch e.Kind {
	case KindAnalyst:
		return fmt.Sprintf("🤖 %s: %s", AnalystLabel, e.Content)
	case KindReviewer:
		return fmt.Sprintf("🤖 %s: %s", ReviewerLabel, e.Content)
	case KindError:
		if strings.HasPrefix(e.Content, "❌") {
			return e.Content
		}
		return "❌ " + e.Content
	default:
		return e.Content
	}
}
