// Package approval provides the human approval gate for tool-call batches.
// A batch is decided as a whole: one approve or deny covers every call in it,
// and no call executes without an explicit approve.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ansibot/ansibot/internal/extract"
	"github.com/ansibot/ansibot/internal/redact"
	"github.com/ansibot/ansibot/internal/timeline"
)

// ErrNoPending is returned when a decision arrives for an unknown or
// already-decided approval.
var ErrNoPending = errors.New("no pending approval")

// Decision is the terminal outcome of one approval batch.
type Decision int

const (
	Denied Decision = iota
	Approved
	TimedOut
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case TimedOut:
		return "timeout"
	default:
		return "denied"
	}
}

// PresentedCall is the user-facing form of one tool call. Args are redacted
// at construction; the gate never holds raw argument values.
type PresentedCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Request represents a pending approval batch.
type Request struct {
	ApprovalID     string          `json:"approval_id"`
	TraceID        string          `json:"trace_id"`
	TurnID         string          `json:"turn_id"`
	ConversationID string          `json:"conversation_id"`
	Sender         string          `json:"sender"`
	Channel        string          `json:"channel"`
	Calls          []PresentedCall `json:"calls"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewRequest builds a Request from extracted tool calls, redacting every
// argument map.
func NewRequest(traceID, turnID, conversationID, sender, channel string, calls []extract.ToolCall) *Request {
	presented := make([]PresentedCall, len(calls))
	for i, c := range calls {
		presented[i] = PresentedCall{Name: c.Name, Args: redact.Args(c.Args)}
	}
	return &Request{
		TraceID:        traceID,
		TurnID:         turnID,
		ConversationID: conversationID,
		Sender:         sender,
		Channel:        channel,
		Calls:          presented,
	}
}

// Manager handles approval lifecycle: create, wait, respond.
type Manager struct {
	mu       sync.Mutex
	pending  map[string]chan Decision
	timeline *timeline.TimelineService
}

// NewManager creates an approval manager. Timeline may be nil.
// On creation, any stale pending approvals in the DB are marked as timeout.
func NewManager(tl *timeline.TimelineService) *Manager {
	m := &Manager{
		pending:  make(map[string]chan Decision),
		timeline: tl,
	}
	m.cleanupStale()
	return m
}

// cleanupStale marks any DB-pending approvals as timeout on startup.
// These are leftovers from a previous process that never resolved them.
func (m *Manager) cleanupStale() {
	if m.timeline == nil {
		return
	}
	pending, err := m.timeline.GetPendingApprovals()
	if err != nil {
		return
	}
	for _, r := range pending {
		_ = m.timeline.UpdateApprovalStatus(r.ApprovalID, timeline.ApprovalStatusTimeout)
	}
}

// Create registers a new approval batch and returns its ID.
func (m *Manager) Create(req *Request) string {
	id := uuid.NewString()[:8]
	req.ApprovalID = id
	req.Status = timeline.ApprovalStatusPending
	req.CreatedAt = time.Now()

	ch := make(chan Decision, 1)
	m.mu.Lock()
	m.pending[id] = ch
	m.mu.Unlock()

	// Persist to timeline (best-effort)
	if m.timeline != nil {
		toolsJSON, _ := json.Marshal(req.Calls)
		_ = m.timeline.InsertApprovalRequest(
			id, req.TraceID, req.TurnID,
			string(toolsJSON), req.Sender, req.Channel,
		)
	}

	return id
}

// Wait blocks until the batch is decided or the context expires.
// Context expiry is a TimedOut decision, not an error: the operator simply
// never answered. After Wait returns the ID is gone; a later Respond for it
// fails with ErrNoPending.
func (m *Manager) Wait(ctx context.Context, id string) (Decision, error) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return Denied, fmt.Errorf("%w: %s", ErrNoPending, id)
	}

	select {
	case decision := <-ch:
		m.cleanup(id)
		if m.timeline != nil {
			_ = m.timeline.UpdateApprovalStatus(id, decision.String())
		}
		return decision, nil
	case <-ctx.Done():
		m.cleanup(id)
		if m.timeline != nil {
			_ = m.timeline.UpdateApprovalStatus(id, timeline.ApprovalStatusTimeout)
		}
		return TimedOut, nil
	}
}

// Respond delivers a decision for a pending batch.
func (m *Manager) Respond(id string, approved bool) error {
	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPending, id)
	}

	decision := Denied
	if approved {
		decision = Approved
	}
	// Non-blocking send (channel is buffered with size 1)
	select {
	case ch <- decision:
	default:
	}
	return nil
}

// PendingCount returns the number of undecided batches.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SolePending returns the ID of the only undecided batch, if exactly one is
// pending. Lets a channel accept a bare yes/no without an ID.
func (m *Manager) SolePending() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) != 1 {
		return "", false
	}
	for id := range m.pending {
		return id, true
	}
	return "", false
}

func (m *Manager) cleanup(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Render formats a batch for the human channel, with the reply tokens the
// inbound parser recognizes.
func Render(req *Request) string {
	var b strings.Builder
	if len(req.Calls) == 1 {
		fmt.Fprintf(&b, "The following action requires approval:\n")
	} else {
		fmt.Fprintf(&b, "The following %d actions require approval (all or nothing):\n", len(req.Calls))
	}
	for _, c := range req.Calls {
		fmt.Fprintf(&b, "  - %s %s\n", c.Name, formatArgsPreview(c.Args))
	}
	fmt.Fprintf(&b, "Reply approve:%s or deny:%s", req.ApprovalID, req.ApprovalID)
	return b.String()
}

// formatArgsPreview renders an argument map compactly, truncated for chat.
func formatArgsPreview(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{...}"
	}
	s := string(data)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// ParseDecisionToken recognizes approve:<id> / deny:<id> reply tokens.
func ParseDecisionToken(content string) (id string, approved, ok bool) {
	trimmed := strings.TrimSpace(strings.ToLower(content))
	if rest, found := strings.CutPrefix(trimmed, "approve:"); found {
		return strings.TrimSpace(rest), true, true
	}
	if rest, found := strings.CutPrefix(trimmed, "deny:"); found {
		return strings.TrimSpace(rest), false, true
	}
	return "", false, false
}

// ParseBareDecision recognizes a plain yes/no style reply with no batch ID.
// The caller resolves which batch it applies to.
func ParseBareDecision(content string) (approved, ok bool) {
	switch strings.TrimSpace(strings.ToLower(content)) {
	case "yes", "y", "approve", "approved", "ok":
		return true, true
	case "no", "n", "deny", "denied":
		return false, true
	}
	return false, false
}
