package timeline

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// TimelineService is the sqlite-backed audit log for turns, approvals, and
// controller jobs. Every write is best-effort from the caller's point of
// view; the orchestrator never fails a turn because the audit insert failed.
type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migrations for existing dbs (no-op if column exists).
	_, _ = db.Exec(`ALTER TABLE turns ADD COLUMN channel TEXT`)
	_, _ = db.Exec(`ALTER TABLE jobs ADD COLUMN template_id INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE approval_requests ADD COLUMN turn_id TEXT`)

	return &TimelineService{db: db}, nil
}

// Close closes the database.
func (s *TimelineService) Close() error {
	return s.db.Close()
}

// CreateTurn inserts a new turn row in running state.
func (s *TimelineService) CreateTurn(turnID, traceID, conversationID, channel, contentIn string) error {
	_, err := s.db.Exec(`
		INSERT INTO turns (turn_id, trace_id, conversation_id, channel, state, content_in)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turnID, traceID, conversationID, channel, TurnStatusRunning, contentIn)
	return err
}

// CompleteTurn records the terminal state of a turn.
func (s *TimelineService) CompleteTurn(turnID, state string, iterations int, contentOut, errorText string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE turns
		SET state = ?, iterations = ?, content_out = ?, error_text = ?, updated_at = ?, completed_at = ?
		WHERE turn_id = ?`,
		state, iterations, contentOut, errorText, now, now, turnID)
	return err
}

// GetTurn returns a turn by ID.
func (s *TimelineService) GetTurn(turnID string) (*TurnRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, turn_id, COALESCE(trace_id, ''), conversation_id, COALESCE(channel, ''),
		       state, iterations, COALESCE(content_in, ''), COALESCE(content_out, ''),
		       COALESCE(error_text, ''), created_at, updated_at, completed_at
		FROM turns WHERE turn_id = ?`, turnID)

	var r TurnRecord
	var completed sql.NullTime
	if err := row.Scan(&r.ID, &r.TurnID, &r.TraceID, &r.ConversationID, &r.Channel,
		&r.State, &r.Iterations, &r.ContentIn, &r.ContentOut,
		&r.ErrorText, &r.CreatedAt, &r.UpdatedAt, &completed); err != nil {
		return nil, err
	}
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	return &r, nil
}

// InsertApprovalRequest records a new pending approval batch.
func (s *TimelineService) InsertApprovalRequest(approvalID, traceID, turnID, toolsJSON, sender, channel string) error {
	_, err := s.db.Exec(`
		INSERT INTO approval_requests (approval_id, trace_id, turn_id, tools_json, sender, channel, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		approvalID, traceID, turnID, toolsJSON, sender, channel, ApprovalStatusPending)
	return err
}

// UpdateApprovalStatus moves an approval to a terminal status.
func (s *TimelineService) UpdateApprovalStatus(approvalID, status string) error {
	_, err := s.db.Exec(`
		UPDATE approval_requests
		SET status = ?, responded_at = ?
		WHERE approval_id = ?`,
		status, time.Now(), approvalID)
	return err
}

// GetPendingApprovals returns all approvals still marked pending.
func (s *TimelineService) GetPendingApprovals() ([]ApprovalRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, approval_id, COALESCE(trace_id, ''), COALESCE(turn_id, ''),
		       tools_json, COALESCE(sender, ''), COALESCE(channel, ''), status, created_at
		FROM approval_requests WHERE status = ?`, ApprovalStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRecord
	for rows.Next() {
		var r ApprovalRecord
		if err := rows.Scan(&r.ID, &r.ApprovalID, &r.TraceID, &r.TurnID,
			&r.ToolsJSON, &r.Sender, &r.Channel, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertJob records a launched controller job.
func (s *TimelineService) InsertJob(jobID, traceID, callID, tool string, templateID int) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (job_id, trace_id, call_id, tool, template_id, status)
		VALUES (?, ?, ?, ?, ?, 'pending')`,
		jobID, traceID, callID, tool, templateID)
	return err
}

// FinishJob records a job's terminal status and duration.
func (s *TimelineService) FinishJob(jobID, status string, duration time.Duration) error {
	_, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, duration_ms = ?, finished_at = ?
		WHERE job_id = ?`,
		status, duration.Milliseconds(), time.Now(), jobID)
	return err
}

// JobsForTrace returns all jobs launched under a trace.
func (s *TimelineService) JobsForTrace(traceID string) ([]JobRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, COALESCE(trace_id, ''), COALESCE(call_id, ''), tool,
		       template_id, status, duration_ms, created_at, finished_at
		FROM jobs WHERE trace_id = ? ORDER BY id`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var r JobRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.JobID, &r.TraceID, &r.CallID, &r.Tool,
			&r.TemplateID, &r.Status, &r.DurationMs, &r.CreatedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddEvent appends a trace event.
func (s *TimelineService) AddEvent(traceID, eventType, title, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO events (trace_id, event_type, title, detail)
		VALUES (?, ?, ?, ?)`,
		traceID, eventType, title, detail)
	return err
}

// EventsForTrace returns all events under a trace, oldest first.
func (s *TimelineService) EventsForTrace(traceID string) ([]EventRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(trace_id, ''), event_type, COALESCE(title, ''), COALESCE(detail, ''), created_at
		FROM events WHERE trace_id = ? ORDER BY id`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.ID, &r.TraceID, &r.EventType, &r.Title, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSetting reads a setting value; ok is false when the key is absent.
func (s *TimelineService) GetSetting(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetSetting writes a setting value.
func (s *TimelineService) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	return err
}
