package conversation

import (
	"encoding/json"
	"fmt"
)

// State is the ordered append-only log of turns for one run. It is owned by
// a single orchestrator run and must not be shared across runs.
type State struct {
	turns   []Turn
	nextSeq int
}

// NewState creates a state seeded with prior history supplied by the caller.
// Seed turns are re-sequenced so Seq stays monotonic from zero.
func NewState(seed []Turn) *State {
	s := &State{}
	for _, t := range seed {
		s.Append(t)
	}
	return s
}

// Append assigns the next sequence index and stores the turn. The stored
// turn is returned so callers can emit exactly what the transcript holds.
func (s *State) Append(t Turn) Turn {
	t.Seq = s.nextSeq
	s.nextSeq++
	s.turns = append(s.turns, t)
	return t
}

// Turns returns a copy of the transcript.
func (s *State) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *State) Len() int { return len(s.turns) }

// Last returns the most recent turn, if any.
func (s *State) Last() (Turn, bool) {
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// TrimHistory drops the oldest turns beyond max, keeping call linkage intact
// by never splitting a tool_call from its tool_result. A max of zero means
// no limit.
func TrimHistory(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	start := len(turns) - max
	// Do not start the window on a dangling tool_result.
	for start < len(turns) && turns[start].Role == RoleToolResult {
		start++
	}
	return turns[start:]
}

// CheckLinks verifies the transcript invariants: every tool_result references
// exactly one earlier tool_call, and no tool_call is left without a result.
func CheckLinks(turns []Turn) error {
	calls := make(map[string]int)
	for i, t := range turns {
		switch t.Role {
		case RoleToolCall:
			if t.CallID == "" {
				return fmt.Errorf("turn %d: tool_call without call id", i)
			}
			if _, dup := calls[t.CallID]; dup {
				return fmt.Errorf("turn %d: duplicate tool_call id %q", i, t.CallID)
			}
			calls[t.CallID] = 0
		case RoleToolResult:
			n, ok := calls[t.CallID]
			if !ok {
				return fmt.Errorf("turn %d: tool_result %q has no prior tool_call", i, t.CallID)
			}
			if n > 0 {
				return fmt.Errorf("turn %d: tool_result %q answered twice", i, t.CallID)
			}
			calls[t.CallID] = n + 1
		}
	}
	for id, n := range calls {
		if n == 0 {
			return fmt.Errorf("tool_call %q has no tool_result", id)
		}
	}
	return nil
}

// Messages renders the transcript in chat-completion wire format. Adjacent
// tool_call turns collapse into one assistant message carrying the whole
// tool request, matching how providers echo them back.
func Messages(turns []Turn) []map[string]any {
	out := make([]map[string]any, 0, len(turns))
	for i := 0; i < len(turns); i++ {
		t := turns[i]
		switch t.Role {
		case RoleUser:
			out = append(out, map[string]any{"role": "user", "content": t.Content})
		case RoleAssistant:
			out = append(out, map[string]any{"role": "assistant", "content": t.Content})
		case RoleToolCall:
			var calls []map[string]any
			for ; i < len(turns) && turns[i].Role == RoleToolCall; i++ {
				ct := turns[i]
				args, _ := json.Marshal(ct.Arguments)
				calls = append(calls, map[string]any{
					"id":   ct.CallID,
					"type": "function",
					"function": map[string]any{
						"name":      ct.ToolName,
						"arguments": string(args),
					},
				})
			}
			i--
			out = append(out, map[string]any{"role": "assistant", "content": "", "tool_calls": calls})
		case RoleToolResult:
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": t.CallID,
				"content":      t.Content,
			})
		}
	}
	return out
}
