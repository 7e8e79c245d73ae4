package dialogue

import "context"

// Node IDs of the two dialogue participants.
const (
	NodeAnalyst  = "analyst"
	NodeReviewer = "reviewer"
)

// Node represents one participant's turn in the dialogue loop.
// It receives the current state, performs its model call and returns a
// NodeResult.
type Node interface {
	// Run executes the turn. ctx carries the per-attempt timeout.
	Run(ctx context.Context, state State) NodeResult
}

// NodeResult represents the output of a node execution.
type NodeResult struct {
	// Delta is the partial state update merged via the reducer.
	Delta State

	// Route specifies the next node, or Stop() to end the dialogue.
	Route Next

	// Err contains any error that occurred during the turn.
	Err error
}

// Next specifies what runs after a node completes.
type Next struct {
	// To is the next node ID.
	To string

	// Terminal ends the dialogue.
	Terminal bool
}

// Stop returns a Next that terminates the dialogue.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeError represents an error that occurred during a turn.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
