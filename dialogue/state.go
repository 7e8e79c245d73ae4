package dialogue

import "github.com/dshills/a2a-go/dialogue/transcript"

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Usage accumulates token counts and cost across a session.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// State is the persisted state of one dialogue session.
type State struct {
	// Config is the configuration the session was started with. Resume
	// rebuilds the agents from it.
	Config Config `json:"config"`

	// Round is the number of the round in progress (1-based).
	Round int `json:"round"`

	// LastAnalyst and LastReviewer hold the most recent answers used to
	// build the next prompt.
	LastAnalyst  string `json:"last_analyst,omitempty"`
	LastReviewer string `json:"last_reviewer,omitempty"`

	// Next is the node that runs next; empty once the dialogue is over.
	Next string `json:"next,omitempty"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	Usage  Usage  `json:"usage"`

	Transcript transcript.Transcript `json:"transcript"`
}

// reduce appends delta entries and overwrites the answer fields that the
// delta sets.
func reduce(prev, delta State) State {
	if delta.LastAnalyst != "" {
		prev.LastAnalyst = delta.LastAnalyst
	}
	if delta.LastReviewer != "" {
		prev.LastReviewer = delta.LastReviewer
	}
	if delta.Round > 0 {
		prev.Round = delta.Round
	}
	prev.Usage.InputTokens += delta.Usage.InputTokens
	prev.Usage.OutputTokens += delta.Usage.OutputTokens
	prev.Usage.CostUSD += delta.Usage.CostUSD
	for _, e := range delta.Transcript.Entries {
		prev.Transcript.Add(e)
	}
	return prev
}

// Done reports whether the session has ended.
func (s State) Done() bool {
	return s.Status != StatusRunning
}
