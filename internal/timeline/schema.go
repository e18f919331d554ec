package timeline

import (
	"time"
)

// TurnRecord represents one orchestrated conversation turn.
type TurnRecord struct {
	ID             int64      `json:"id"`
	TurnID         string     `json:"turn_id"`
	TraceID        string     `json:"trace_id"`
	ConversationID string     `json:"conversation_id"`
	Channel        string     `json:"channel"`
	State          string     `json:"state"`
	Iterations     int        `json:"iterations"`
	ContentIn      string     `json:"content_in,omitempty"`
	ContentOut     string     `json:"content_out,omitempty"`
	ErrorText      string     `json:"error_text,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ApprovalRecord represents a tool approval batch stored in the database.
// ToolsJSON holds the redacted presentation of the batch.
type ApprovalRecord struct {
	ID          int64      `json:"id"`
	ApprovalID  string     `json:"approval_id"`
	TraceID     string     `json:"trace_id,omitempty"`
	TurnID      string     `json:"turn_id,omitempty"`
	ToolsJSON   string     `json:"tools_json"`
	Sender      string     `json:"sender,omitempty"`
	Channel     string     `json:"channel,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// JobRecord represents a controller job launched for an approved tool call.
type JobRecord struct {
	ID         int64      `json:"id"`
	JobID      string     `json:"job_id"`
	TraceID    string     `json:"trace_id,omitempty"`
	CallID     string     `json:"call_id"`
	Tool       string     `json:"tool"`
	TemplateID int        `json:"template_id"`
	Status     string     `json:"status"`
	DurationMs int        `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// EventRecord is one trace span: a model call, an extraction, a state change.
type EventRecord struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id"`
	EventType string    `json:"event_type"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn status values.
const (
	TurnStatusRunning        = "running"
	TurnStatusEnded          = "ended"
	TurnStatusCancelled      = "cancelled"
	TurnStatusFailed         = "failed"
	TurnStatusIterationLimit = "iteration_limit"
)

// Approval status values.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusDenied   = "denied"
	ApprovalStatusTimeout  = "timeout"
)

const Schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id TEXT UNIQUE NOT NULL,
	trace_id TEXT,
	conversation_id TEXT NOT NULL,
	channel TEXT,
	state TEXT NOT NULL DEFAULT 'running',
	iterations INTEGER NOT NULL DEFAULT 0,
	content_in TEXT,
	content_out TEXT,
	error_text TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id);
CREATE INDEX IF NOT EXISTS idx_turns_trace ON turns(trace_id);
CREATE INDEX IF NOT EXISTS idx_turns_state ON turns(state);

CREATE TABLE IF NOT EXISTS approval_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	approval_id TEXT UNIQUE NOT NULL,
	trace_id TEXT,
	turn_id TEXT,
	tools_json TEXT NOT NULL DEFAULT '[]',
	sender TEXT,
	channel TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	responded_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_approval_status ON approval_requests(status);
CREATE INDEX IF NOT EXISTS idx_approval_id ON approval_requests(approval_id);

CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	trace_id TEXT,
	call_id TEXT,
	tool TEXT NOT NULL,
	template_id INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_jobs_trace ON jobs(trace_id);
CREATE INDEX IF NOT EXISTS idx_jobs_tool ON jobs(tool);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	event_type TEXT NOT NULL,
	title TEXT,
	detail TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON events(trace_id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at DATETIME
);
`
