package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// HistoryMirror maintains a best-effort JSON snapshot of each session's
// messages under <dir>/team-<team_id>/<session_id>.json, synced after every
// commit. Grounded on history_file_store.py's sync-on-commit file store:
// /history/search reads this flat snapshot instead of re-scanning the
// relational store, keeping a grep-style query cheap without standing up a
// full-text index the teacher never carries. Unlike history_file_store.py's
// team/user/session nesting, this mirror keys on team+session only: this
// core's chat_sessions table (internal/store/sessions.go) has no per-user
// ownership column to key a user segment against, and every session lookup
// elsewhere (GetSession, DeleteSession, ListMessages) is already team-scoped.
type HistoryMirror struct {
	dir string
}

func NewHistoryMirror(dir string) *HistoryMirror {
	return &HistoryMirror{dir: dir}
}

type historySnapshot struct {
	SessionID string                   `json:"session_id"`
	TeamID    int64                    `json:"team_id"`
	UpdatedAt string                   `json:"updated_at"`
	Messages  []historySnapshotMessage `json:"messages"`
}

type historySnapshotMessage struct {
	Ordinal   int64  `json:"ordinal"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func (h *HistoryMirror) path(teamID int64, sessionID string) string {
	return filepath.Join(h.dir, "team-"+strconv.FormatInt(teamID, 10), sessionID+".json")
}

// Sync re-reads a session's full message history from db and rewrites its
// snapshot file, called once per committed turn. A write failure is logged
// by the caller but never fails the turn — the mirror is a convenience
// index, not the source of truth.
func (h *HistoryMirror) Sync(ctx context.Context, db *Store, teamID int64, sessionID string) error {
	rows, err := db.ListMessages(ctx, teamID, sessionID, 0, 0)
	if err != nil {
		return err
	}

	snap := historySnapshot{SessionID: sessionID, TeamID: teamID, UpdatedAt: nowUTC()}
	for _, row := range rows {
		snap.Messages = append(snap.Messages, historySnapshotMessage{
			Ordinal: row.Ordinal, Role: string(row.Role), Content: row.Content,
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	path := h.path(teamID, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes a session's snapshot, called alongside DeleteSession.
func (h *HistoryMirror) Delete(teamID int64, sessionID string) error {
	err := os.Remove(h.path(teamID, sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Search loads the snapshot and returns every message whose content
// contains query (case-insensitive). Falls back to an empty result, not an
// error, when no snapshot exists yet for the session (e.g. a session with
// no committed turns).
func (h *HistoryMirror) Search(teamID int64, sessionID, query string) ([]historySnapshotMessage, error) {
	data, err := os.ReadFile(h.path(teamID, sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap historySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	lowered := strings.ToLower(query)
	var out []historySnapshotMessage
	for _, m := range snap.Messages {
		if strings.Contains(strings.ToLower(m.Content), lowered) {
			out = append(out, m)
		}
	}
	return out, nil
}
