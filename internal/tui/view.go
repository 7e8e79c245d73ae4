package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/a2a-go/dialogue/transcript"
)

const (
	headerHeight = 2
	footerHeight = 2
	promptHeight = 3
)

type theme struct {
	title      lipgloss.Style
	setting    lipgloss.Style
	settingKey lipgloss.Style
	selected   lipgloss.Style
	analyst    lipgloss.Style
	reviewer   lipgloss.Style
	system     lipgloss.Style
	errorText  lipgloss.Style
	status     lipgloss.Style
	help       lipgloss.Style
	inputPanel lipgloss.Style
	convPanel  lipgloss.Style
	spinner    lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#0066CC")
	orange := lipgloss.Color("#CC6600")
	grey := lipgloss.Color("#808080")
	red := lipgloss.Color("#CC0000")

	return theme{
		title:      lipgloss.NewStyle().Bold(true),
		setting:    lipgloss.NewStyle(),
		settingKey: lipgloss.NewStyle().Foreground(grey),
		selected:   lipgloss.NewStyle().Bold(true).Underline(true),
		analyst:    lipgloss.NewStyle().Foreground(blue),
		reviewer:   lipgloss.NewStyle().Foreground(orange),
		system:     lipgloss.NewStyle().Foreground(grey),
		errorText:  lipgloss.NewStyle().Foreground(red).Bold(true),
		status:     lipgloss.NewStyle().Foreground(blue),
		help:       lipgloss.NewStyle().Foreground(grey),
		inputPanel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(grey),
		convPanel:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(grey),
		spinner:    lipgloss.NewStyle().Foreground(orange),
	}
}

func (a *App) resize() {
	width := max(20, a.width-2)
	a.prompt.SetWidth(width)
	a.conv.Width = width
	// Borders take two lines around each panel.
	a.conv.Height = max(3, a.height-headerHeight-footerHeight-promptHeight-4)
	a.renderConversation()
}

// View renders the App.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.theme.convPanel.Render(a.conv.View()))
	b.WriteString("\n")
	b.WriteString(a.theme.inputPanel.Render(a.prompt.View()))
	b.WriteString("\n")
	b.WriteString(a.renderStatus())
	b.WriteString("\n")
	b.WriteString(a.theme.help.Render(a.helpLine()))
	return b.String()
}

func (a *App) renderHeader() string {
	items := []struct {
		label string
		value string
		f     focus
	}{
		{"Agent 1", orNone(a.cfg.Analyst.Model), focusAnalyst},
		{"Agent 2", orNone(a.cfg.Reviewer.Model), focusReviewer},
		{"Rounds", fmt.Sprintf("%d", a.cfg.Rounds), focusRounds},
		{"Timeout", fmt.Sprintf("%ds", int(a.cfg.Analyst.Timeout/time.Second)), focusTimeout},
	}

	parts := make([]string, 0, len(items))
	for _, it := range items {
		style := a.theme.setting
		if a.focus == it.f {
			style = a.theme.selected
		}
		parts = append(parts, a.theme.settingKey.Render(it.label+": ")+style.Render(it.value))
	}
	return a.theme.title.Render("A2A Dialogue") + "\n" + strings.Join(parts, "  ·  ")
}

func (a *App) renderStatus() string {
	if a.err != nil {
		return a.theme.errorText.Render(fmt.Sprintf("%s: %v", a.statusMsg, a.err))
	}
	if a.running && a.turn != nil {
		line := fmt.Sprintf("%s (%s) thinking... %ds", a.turn.agent, a.turn.model, int(a.turn.elapsed.Seconds()))
		if a.turn.limited {
			line += fmt.Sprintf(", %ds left", int(a.turn.remaining.Seconds()))
		}
		return a.spinner.View() + " " + a.theme.status.Render(line)
	}
	if a.running {
		return a.spinner.View() + " " + a.theme.status.Render(a.statusMsg)
	}
	return a.theme.status.Render(a.statusMsg)
}

func (a *App) helpLine() string {
	if a.running {
		return "esc stop · pgup/pgdn scroll · ctrl+c quit"
	}
	if a.focus != focusPrompt {
		return "←/→ change · tab next · ctrl+s start · ctrl+r refresh models · ctrl+c quit"
	}
	return "ctrl+s start · tab settings · ctrl+l clear · ctrl+e export · ctrl+r refresh models · ctrl+c quit"
}

// renderConversation redraws the transcript into the viewport and scrolls
// to the newest entry.
func (a *App) renderConversation() {
	if len(a.log.Entries) == 0 {
		a.conv.SetContent(a.theme.system.Render("Enter a prompt and press ctrl+s to start the dialogue."))
		return
	}

	wrap := lipgloss.NewStyle().Width(max(10, a.conv.Width))
	var b strings.Builder
	for i, e := range a.log.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(a.entryStyle(e.Kind).Render(wrap.Render(e.Line())))
		b.WriteString("\n")
	}
	a.conv.SetContent(b.String())
	a.conv.GotoBottom()
}

func (a *App) entryStyle(k transcript.Kind) lipgloss.Style {
	switch k {
	case transcript.KindAnalyst:
		return a.theme.analyst
	case transcript.KindReviewer:
		return a.theme.reviewer
	case transcript.KindError:
		return a.theme.errorText
	default:
		return a.theme.system
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
