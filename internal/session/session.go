// Package session implements the in-memory session store: TTL/LRU-bounded
// materialization of a chat session, ownership re-validation on reuse, and
// role/workspace-root drift resets. Grounded directly on
// original_source/session_store.py's SessionStore — get_or_create,
// update_messages, and assert_access carry over unchanged in behavior,
// translated from asyncio.Lock + dict to a sync.Mutex + map guarded the
// way internal/daemon/daemon.go guards its module registry.
package session

import (
	"sync"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/budget"
)

// ChatMessage and Attachment are aliased from internal/budget, which owns
// the canonical shape a trimmable message takes — keeping one definition
// avoids a conversion step every time a session's history is budgeted.
type ChatMessage = budget.ChatMessage
type Attachment = budget.Attachment

// State is one session's live, in-memory materialization: the message
// history the provider adapter sees, plus continuation handles for
// external subprocess/HTTP providers that carry their own server-side
// conversation state.
type State struct {
	SessionID     string
	UserID        int64
	TeamID        int64
	Role          string
	WorkspaceRoot string
	Provider      string
	Model         string
	CreatedAt     time.Time
	LastSeenAt    time.Time
	Messages      []ChatMessage

	// External-provider continuation handles; reset whenever Role or
	// WorkspaceRoot drifts, since either invalidates the remote side's
	// assumptions about the session.
	OpenCodeSessionID string
	SubprocessThreadID string
}

type NewSessionParams struct {
	SessionID     string
	UserID        int64
	TeamID        int64
	Role          string
	SystemPrompt  string
	WorkspaceRoot string
	Provider      string
	Model         string
}

// Store is the TTL/LRU-bounded in-memory session map. It is not the
// durable store: a Store entry is a cache of the durable session plus the
// live provider-facing message list, rehydrated on miss by the caller
// (the agent loop, via internal/store) rather than by this package, to
// keep the dependency direction one-way.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*State
	ttl         time.Duration
	maxSessions int
}

func New(ttl time.Duration, maxSessions int) *Store {
	return &Store{sessions: make(map[string]*State), ttl: ttl, maxSessions: maxSessions}
}

func (s *Store) isExpired(st *State, now time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	return now.Sub(st.LastSeenAt) > s.ttl
}

func (s *Store) pruneLocked(now time.Time) {
	if s.ttl > 0 {
		for id, st := range s.sessions {
			if s.isExpired(st, now) {
				delete(s.sessions, id)
			}
		}
	}
	if s.maxSessions > 0 && len(s.sessions) > s.maxSessions {
		type kv struct {
			id string
			at time.Time
		}
		all := make([]kv, 0, len(s.sessions))
		for id, st := range s.sessions {
			all = append(all, kv{id, st.LastSeenAt})
		}
		// simple selection of the oldest N to evict; session counts are
		// small enough per process that an O(n log n) sort isn't worth
		// importing sort for a handful of comparisons inline.
		for len(s.sessions) > s.maxSessions {
			oldestIdx := 0
			for i := 1; i < len(all); i++ {
				if all[i].at.Before(all[oldestIdx].at) {
					oldestIdx = i
				}
			}
			delete(s.sessions, all[oldestIdx].id)
			all = append(all[:oldestIdx], all[oldestIdx+1:]...)
		}
	}
}

// GetOrCreate returns the live session state, validating ownership and
// resetting provider continuation handles on role/workspace drift, per
// original_source's get_or_create. A session_id already bound to a
// different user or team is reported as NotFound rather than
// PermissionDenied: team isolation hides the session's existence instead
// of revealing it and refusing access.
func (s *Store) GetOrCreate(p NewSessionParams) (*State, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)

	existing, ok := s.sessions[p.SessionID]
	if ok && s.isExpired(existing, now) {
		delete(s.sessions, p.SessionID)
		ok = false
	}

	if ok {
		if existing.UserID != p.UserID || existing.TeamID != p.TeamID {
			return nil, apierr.New(apierr.KindNotFound, "session not found")
		}
		if existing.Role != p.Role || existing.WorkspaceRoot != p.WorkspaceRoot {
			existing.Role = p.Role
			existing.WorkspaceRoot = p.WorkspaceRoot
			existing.OpenCodeSessionID = ""
			existing.SubprocessThreadID = ""
			existing.Messages = []ChatMessage{{Role: "system", Content: p.SystemPrompt}}
		} else if len(existing.Messages) > 0 && existing.Messages[0].Role == "system" {
			existing.Messages[0].Content = p.SystemPrompt
		}
		existing.LastSeenAt = now
		return existing, nil
	}

	st := &State{
		SessionID: p.SessionID, UserID: p.UserID, TeamID: p.TeamID,
		Role: p.Role, WorkspaceRoot: p.WorkspaceRoot, Provider: p.Provider, Model: p.Model,
		CreatedAt: now, LastSeenAt: now,
		Messages: []ChatMessage{{Role: "system", Content: p.SystemPrompt}},
	}
	s.sessions[p.SessionID] = st
	s.pruneLocked(now)
	return st, nil
}

// UpdateMessages replaces a live session's message list with a
// budget-trimmed view, silently no-op'ing if the session has since been
// evicted or does not belong to (userID, teamID) — matching
// original_source's fire-and-forget update_messages semantics.
func (s *Store) UpdateMessages(sessionID string, userID, teamID int64, messages []ChatMessage, cfg budget.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok || st.UserID != userID || st.TeamID != teamID {
		return
	}
	st.Messages = budget.Trim(messages, cfg).Messages
	st.LastSeenAt = time.Now()
}

// AssertAccess fails closed if the session is missing, expired, or owned
// by a different user/team, and otherwise refreshes LastSeenAt. A
// cross-team session is reported identically to a missing one (NotFound),
// matching internal/store/sessions.go's durable-store lookup.
func (s *Store) AssertAccess(sessionID string, userID, teamID int64) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return apierr.New(apierr.KindNotFound, "session not found")
	}
	if s.isExpired(st, now) {
		delete(s.sessions, sessionID)
		return apierr.New(apierr.KindNotFound, "session expired")
	}
	if st.UserID != userID || st.TeamID != teamID {
		return apierr.New(apierr.KindNotFound, "session not found")
	}
	st.LastSeenAt = now
	return nil
}

// Evict drops a session from the live cache (used on explicit delete).
func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
