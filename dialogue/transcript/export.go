package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrEmptyTranscript is returned when exporting a transcript with no entries.
var ErrEmptyTranscript = errors.New("transcript is empty")

// DefaultTitle heads Markdown exports when the transcript has no title.
const DefaultTitle = "A2A Dialogue Log"

// DefaultFilename returns the suggested export name for a dialogue
// finished at now.
func DefaultFilename(now time.Time) string {
	return "a2a_" + now.Format("20060102_150405") + ".md"
}

// Markdown renders t. generated is printed in the header.
//
// Agent responses become level-2 headings followed by the quoted response.
// System lines starting with "=== " become level-2 headings and lines
// starting with "--- " level-3 headings. Errors and warnings are bold.
func Markdown(t *Transcript, generated time.Time) string {
	title := t.Title
	if title == "" {
		title = DefaultTitle
	}

	var sb strings.Builder
	sb.WriteString("# " + title + "\n")
	sb.WriteString("Generated: " + generated.Format("2006-01-02 15:04:05") + "\n\n")

	for _, e := range t.Entries {
		switch e.Kind {
		case KindAnalyst:
			writeAgent(&sb, AnalystLabel+" (Analyst)", e.Content)
		case KindReviewer:
			writeAgent(&sb, ReviewerLabel+" (Reviewer)", e.Content)
		case KindError:
			writeBold(&sb, e.Line())
		default:
			writeSystem(&sb, e.Content)
		}
	}
	return sb.String()
}

func writeAgent(sb *strings.Builder, heading, content string) {
	sb.WriteString("## " + heading + "\n")
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			sb.WriteString(">\n")
			continue
		}
		sb.WriteString("> " + line + "\n")
	}
	sb.WriteString("\n")
}

func writeBold(sb *strings.Builder, content string) {
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString("**" + line + "**\n\n")
		}
	}
}

func writeSystem(sb *strings.Builder, content string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "=== "):
			sb.WriteString("## " + line + "\n\n")
		case strings.HasPrefix(line, "--- "):
			sb.WriteString("### " + line + "\n\n")
		case strings.HasPrefix(line, "❌") || strings.HasPrefix(line, "⚠️"):
			sb.WriteString("**" + line + "**\n\n")
		default:
			sb.WriteString(line + "\n")
		}
	}
}

// PlainText renders t as timestamped lines, matching the live view.
func PlainText(t *Transcript) string {
	var sb strings.Builder
	for _, e := range t.Entries {
		sb.WriteString("[" + e.Time.Format("15:04:05") + "] " + e.Line() + "\n")
	}
	return sb.String()
}

// JSON renders the structured transcript.
func JSON(t *Transcript) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Save writes t to path. The format follows the extension: ".txt" is plain
// text, ".json" is JSON and anything else is Markdown.
func Save(path string, t *Transcript, now time.Time) error {
	if t == nil || len(t.Entries) == 0 {
		return ErrEmptyTranscript
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data = []byte(PlainText(t))
	case ".json":
		var err error
		if data, err = JSON(t); err != nil {
			return fmt.Errorf("encode transcript: %w", err)
		}
	default:
		data = []byte(Markdown(t, now))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
