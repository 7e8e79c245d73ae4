package dialogue

import (
	"context"

	"github.com/dshills/a2a-go/dialogue/model"
	"github.com/dshills/a2a-go/dialogue/transcript"
)

// agentNode asks one participant's model for its answer.
type agentNode struct {
	id      string
	kind    transcript.Kind
	cfg     AgentConfig
	chat    model.ChatModel
	prompts *Prompts
}

func newAgentNode(id string, cfg AgentConfig, chat model.ChatModel, prompts *Prompts) *agentNode {
	kind := transcript.KindAnalyst
	if id == NodeReviewer {
		kind = transcript.KindReviewer
	}
	return &agentNode{id: id, kind: kind, cfg: cfg, chat: chat, prompts: prompts}
}

// Run implements Node.
func (n *agentNode) Run(ctx context.Context, s State) NodeResult {
	prompt, err := n.prompt(s)
	if err != nil {
		return NodeResult{Err: &NodeError{Message: err.Error(), Code: "PROMPT_ERROR", NodeID: n.id, Cause: err}}
	}

	messages := make([]model.Message, 0, 2)
	if n.cfg.SystemPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: n.cfg.SystemPrompt})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

	out, err := n.chat.Chat(ctx, messages, n.cfg.GenOptions())
	if err != nil {
		return NodeResult{Err: &NodeError{Message: err.Error(), Code: model.CodeOf(err), NodeID: n.id, Cause: err}}
	}

	delta := State{
		Usage: Usage{InputTokens: out.InputTokens, OutputTokens: out.OutputTokens},
		Transcript: transcript.Transcript{Entries: []transcript.Entry{{
			Kind:         n.kind,
			Round:        s.Round,
			Agent:        n.cfg.Name,
			Model:        n.cfg.Model,
			Content:      out.Text,
			InputTokens:  out.InputTokens,
			OutputTokens: out.OutputTokens,
		}}},
	}

	if n.id == NodeAnalyst {
		delta.LastAnalyst = out.Text
		return NodeResult{Delta: delta, Route: Goto(NodeReviewer)}
	}

	delta.LastReviewer = out.Text
	if s.Round < s.Config.Rounds {
		return NodeResult{Delta: delta, Route: Goto(NodeAnalyst)}
	}
	return NodeResult{Delta: delta, Route: Stop()}
}

func (n *agentNode) prompt(s State) (string, error) {
	if n.id == NodeAnalyst {
		return n.prompts.Analyst(s)
	}
	return n.prompts.Reviewer(s)
}
