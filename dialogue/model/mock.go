package model

import (
	"context"
	"sync"
	"time"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Responses are returned in order; once exhausted the last response repeats.
// Errs, when set, is consulted first: call i fails with Errs[i] if that entry
// is non-nil. Err fails every call. Delay makes each call wait (honouring
// context cancellation) before answering, which lets tests exercise timeouts.
type MockChatModel struct {
	// Responses is the scripted list of outputs.
	Responses []ChatOut

	// Err, if set, is returned from every call.
	Err error

	// Errs holds per-call errors, indexed by call number.
	Errs []error

	// Delay is how long each call blocks before answering.
	Delay time.Duration

	// Calls records every invocation.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of MockChatModel.Chat.
type MockChatCall struct {
	Messages []Message
	Opts     GenOptions
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, opts GenOptions) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Opts: opts})
	call := len(m.Calls) - 1
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ChatOut{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if call < len(m.Errs) && m.Errs[call] != nil {
		return ChatOut{}, m.Errs[call]
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears recorded calls and rewinds the response script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of calls made so far.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}

// LastPrompt returns the content of the last user message of the most recent
// call, or "" when no call was made.
func (m *MockChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return ""
	}
	msgs := m.Calls[len(m.Calls)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
