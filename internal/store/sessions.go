package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

type Session struct {
	SessionID   string
	TeamID      int64
	ProjectID   *int64
	Role        string
	Provider    string
	Model       string
	LastSummary string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

type Message struct {
	ID            int64
	SessionID     string
	TeamID        int64
	Ordinal       int64
	Role          MessageRole
	Content       string
	ToolCallsJSON string // raw JSON, present on assistant messages that call tools
	ToolCallID    string // present on role=tool messages
	EventsJSON    string // raw JSON event trace, attached to the terminal assistant message
	CreatedAt     time.Time
}

type Attachment struct {
	FileID      string
	Kind        string // image | file | generated
	Filename    string
	ContentType string
	SizeBytes   int64
	TeamID      int64
	ProjectID   *int64
	SessionID   *string
	SourcePath  string
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// GetSession fails with NotFound both when the row is absent and when it
// belongs to a different team, matching spec invariant 1.
func (s *Store) GetSession(ctx context.Context, teamID int64, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT session_id, team_id, project_id, role, provider, model, COALESCE(last_summary,''), created_at, updated_at
		FROM chat_sessions WHERE session_id = ? AND team_id = ?`), sessionID, teamID)

	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.SessionID, &sess.TeamID, &sess.ProjectID, &sess.Role, &sess.Provider, &sess.Model, &sess.LastSummary, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.New(apierr.KindNotFound, "session not found")
		}
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context, teamID int64, limit int) ([]Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT session_id, team_id, project_id, role, provider, model, COALESCE(last_summary,''), created_at, updated_at
		FROM chat_sessions WHERE team_id = ? ORDER BY updated_at DESC LIMIT ?`), teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.SessionID, &sess.TeamID, &sess.ProjectID, &sess.Role, &sess.Provider, &sess.Model, &sess.LastSummary, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, teamID int64, sessionID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM chat_sessions WHERE session_id = ? AND team_id = ?`), sessionID, teamID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.New(apierr.KindNotFound, "session not found")
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`DELETE FROM chat_messages WHERE session_id = ? AND team_id = ?`), sessionID, teamID)
	return err
}

func (s *Store) ListMessages(ctx context.Context, teamID int64, sessionID string, sinceOrdinal int64, limit int) ([]Message, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, team_id, ordinal, role, COALESCE(content,''), COALESCE(tool_calls_json,''), COALESCE(tool_call_id,''), COALESCE(events_json,''), created_at
		FROM chat_messages WHERE session_id = ? AND team_id = ? AND ordinal > ?
		ORDER BY ordinal ASC LIMIT ?`), sessionID, teamID, sinceOrdinal, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.TeamID, &m.Ordinal, &m.Role, &m.Content, &m.ToolCallsJSON, &m.ToolCallID, &m.EventsJSON, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// TurnCommit bundles everything a single successful turn writes per spec
// §4.10: session upsert, the user message, each assistant/tool message in
// order (events_json on the terminal assistant message only), and any
// artifacts produced. All rows commit together in one transaction; on
// failure nothing is written. Ordinal on UserMessage/ProducedMessages is
// assigned by CommitTurn itself from inside the transaction (spec §5) —
// any value the caller sets is overwritten.
type TurnCommit struct {
	Session          Session
	UserMessage      Message
	ProducedMessages []Message // assistant/tool messages, in emission order
	Attachments      []Attachment
	OutputLinks      []MessageAttachmentLink // message_id is resolved post-insert by index into ProducedMessages
}

type MessageAttachmentLink struct {
	MessageIndex int // index into TurnCommit.ProducedMessages
	FileID       string
	Direction    string // input | output
}

// CommitTurn executes the atomic per-turn write. On any failure the
// transaction is rolled back and no row is visible.
func (s *Store) CommitTurn(ctx context.Context, turn TurnCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowUTC()
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO chat_sessions (session_id, team_id, project_id, role, provider, model, last_summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			role = excluded.role, provider = excluded.provider, model = excluded.model,
			last_summary = excluded.last_summary, updated_at = excluded.updated_at
	`), turn.Session.SessionID, turn.Session.TeamID, turn.Session.ProjectID, turn.Session.Role,
		turn.Session.Provider, turn.Session.Model, turn.Session.LastSummary, now, now); err != nil {
		return err
	}

	// Ordinal is assigned here, inside the same transaction that inserts
	// the rows, rather than by a caller-side NextOrdinal lookup — spec §5
	// requires ordinal assignment and persistence to be part of one
	// serialized unit so two concurrent turns on the same session_id can
	// never compute the same base ordinal. idx_chat_messages_session_ordinal
	// (UNIQUE(session_id, ordinal)) backstops this if it ever does happen.
	var nextOrdinal int64
	row := tx.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(ordinal), 0) FROM chat_messages WHERE session_id = ?`), turn.Session.SessionID)
	if err := row.Scan(&nextOrdinal); err != nil {
		return err
	}

	insertMsg := func(m Message) (int64, error) {
		nextOrdinal++
		query := `
			INSERT INTO chat_messages (session_id, team_id, ordinal, role, content, tool_calls_json, tool_call_id, events_json, created_at)
			VALUES (?, ?, ?, ?, ?, NULLIF(?,''), NULLIF(?,''), NULLIF(?,''), ?)`
		args := []any{m.SessionID, m.TeamID, nextOrdinal, m.Role, m.Content, m.ToolCallsJSON, m.ToolCallID, m.EventsJSON, now}

		if s.dialect == DialectPostgres {
			var id int64
			err := tx.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
			return id, err
		}
		res, err := tx.ExecContext(ctx, s.rebind(query), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	if _, err := insertMsg(turn.UserMessage); err != nil {
		return err
	}

	producedIDs := make([]int64, len(turn.ProducedMessages))
	for i, m := range turn.ProducedMessages {
		id, err := insertMsg(m)
		if err != nil {
			return err
		}
		producedIDs[i] = id
	}

	for _, a := range turn.Attachments {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO file_records (file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), a.FileID, a.Kind, a.Filename, a.ContentType, a.SizeBytes, a.TeamID, a.ProjectID, a.SessionID, a.SourcePath, now); err != nil {
			return err
		}
	}

	for _, link := range turn.OutputLinks {
		if link.MessageIndex < 0 || link.MessageIndex >= len(producedIDs) {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO message_attachments (message_id, file_id, direction) VALUES (?, ?, ?)
		`), producedIDs[link.MessageIndex], link.FileID, link.Direction); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// InsertAttachmentOnly inserts a single file_records row outside of a turn
// commit, for direct endpoints (uploads, document generation) that are not
// part of an agent-loop turn.
func (s *Store) InsertAttachmentOnly(ctx context.Context, a Attachment) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO file_records (file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), a.FileID, a.Kind, a.Filename, a.ContentType, a.SizeBytes, a.TeamID, a.ProjectID, a.SessionID, a.SourcePath, nowUTC())
	return err
}

func (s *Store) GetAttachment(ctx context.Context, teamID int64, fileID string) (*Attachment, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at
		FROM file_records WHERE file_id = ? AND team_id = ? AND deleted_at IS NULL`), fileID, teamID)

	var a Attachment
	var createdAt string
	if err := row.Scan(&a.FileID, &a.Kind, &a.Filename, &a.ContentType, &a.SizeBytes, &a.TeamID, &a.ProjectID, &a.SessionID, &a.SourcePath, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.New(apierr.KindNotFound, "file not found")
		}
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) DeleteAttachment(ctx context.Context, teamID int64, fileID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE file_records SET deleted_at = ? WHERE file_id = ? AND team_id = ? AND deleted_at IS NULL`), nowUTC(), fileID, teamID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.New(apierr.KindNotFound, "file not found")
	}
	return nil
}

// IsReferenced reports whether any non-deleted message still links to
// file_id, used by the artifact GC sweep to avoid deleting a live
// reference (spec §4.2 GC policy).
func (s *Store) IsReferenced(ctx context.Context, fileID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(1) FROM message_attachments ma
		JOIN chat_messages m ON m.id = ma.message_id
		WHERE ma.file_id = ?`), fileID)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletedAttachmentsOlderThan lists soft-deleted file records whose
// deleted_at predates cutoff, for the GC sweep to unlink from disk.
func (s *Store) DeletedAttachmentsOlderThan(ctx context.Context, cutoff time.Time) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at
		FROM file_records WHERE deleted_at IS NOT NULL AND deleted_at < ?`), cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		var createdAt string
		if err := rows.Scan(&a.FileID, &a.Kind, &a.Filename, &a.ContentType, &a.SizeBytes, &a.TeamID, &a.ProjectID, &a.SessionID, &a.SourcePath, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) PurgeAttachmentRow(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM file_records WHERE file_id = ?`), fileID)
	return err
}
