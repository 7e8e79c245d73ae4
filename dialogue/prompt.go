package dialogue

import (
	"fmt"
	"strings"
	"text/template"
)

// Built-in prompt templates.
const (
	DefaultReviewerTemplate = "Previous agent's opinion: {{.Analyst}}\n\n" +
		"Evaluate, critique and suggest improvements on this opinion: {{.Prompt}}"

	DefaultFollowUpTemplate = "Previous discussion:\nAgent1: {{.Analyst}}\n\nAgent2: {{.Reviewer}}\n\n" +
		"Building on this discussion, consider it even more deeply: {{.Prompt}}"
)

// PromptData is the data passed to prompt templates.
type PromptData struct {
	// Prompt is the initial prompt of the session.
	Prompt string

	// Analyst and Reviewer are the latest answers of each agent.
	Analyst  string
	Reviewer string

	// Round is the round being prompted and Rounds the configured total.
	Round  int
	Rounds int
}

// Prompts renders the prompt for each turn.
type Prompts struct {
	reviewer *template.Template
	followUp *template.Template
}

// NewPrompts parses the templates, falling back to the built-in ones for
// empty fields.
func NewPrompts(t Templates) (*Prompts, error) {
	reviewer, err := parseTemplate("reviewer", t.Reviewer, DefaultReviewerTemplate)
	if err != nil {
		return nil, err
	}
	followUp, err := parseTemplate("follow_up", t.FollowUp, DefaultFollowUpTemplate)
	if err != nil {
		return nil, err
	}
	return &Prompts{reviewer: reviewer, followUp: followUp}, nil
}

func parseTemplate(name, text, fallback string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s template: %w", name, err)
	}
	return tmpl, nil
}

// Analyst returns the Analyst's prompt: the initial prompt in round 1, the
// follow-up template afterwards.
func (p *Prompts) Analyst(s State) (string, error) {
	if s.Round <= 1 || s.LastAnalyst == "" {
		return s.Config.Prompt, nil
	}
	return render(p.followUp, data(s))
}

// Reviewer returns the Reviewer's prompt built from the Analyst's answer.
func (p *Prompts) Reviewer(s State) (string, error) {
	return render(p.reviewer, data(s))
}

func data(s State) PromptData {
	return PromptData{
		Prompt:   s.Config.Prompt,
		Analyst:  s.LastAnalyst,
		Reviewer: s.LastReviewer,
		Round:    s.Round,
		Rounds:   s.Config.Rounds,
	}
}

func render(t *template.Template, d PromptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}
