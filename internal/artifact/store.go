// Package artifact implements the content-addressed output store: writing
// generated/uploaded files under outputs_dir, issuing short-lived signed
// download tokens, and resolving them back to a path. Grounded on the
// teacher's token-with-expiry shape (internal/llm/auth.go's AuthStore)
// generalized from OAuth bearer tokens to download tokens, and on
// original_source's task_artifact_service.py for the file-id/path
// conventions. Ownership of files on disk belongs exclusively to this
// package; callers only ever see an opaque file_id.
package artifact

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/store"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Store owns the outputs directory and the file_id <-> Attachment mapping.
type Store struct {
	dir    string
	db     *store.Store
	secret []byte
}

func New(outputsDir string, db *store.Store, downloadTokenSecret string) (*Store, error) {
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create outputs dir: %w", err)
	}
	return &Store{dir: outputsDir, db: db, secret: []byte(downloadTokenSecret)}, nil
}

// NewFileID mints a URL-safe token of at least 64 bits of entropy (spec
// §4.2/§6), base62-encoded, with the original extension preserved. A
// hand-rolled encoder is used deliberately: no corpus dependency offers
// base62 with an unpadded, URL-safe alphabet, and pulling one in for a
// single call site is not worth a new dependency (documented in DESIGN.md).
func NewFileID(filename string) string {
	raw := make([]byte, 16) // 128 bits, well over the 64-bit floor
	if _, err := rand.Read(raw); err != nil {
		panic("artifact: crypto/rand unavailable: " + err.Error())
	}
	token := base62Encode(raw)
	ext := filepath.Ext(filename)
	return token + ext
}

func base62Encode(b []byte) string {
	var n uint64
	// Fold 16 bytes into two 64-bit words and encode each; simpler and
	// sufficient for a fixed-width token (we don't need arbitrary bigints).
	var out strings.Builder
	for _, word := range []uint64{
		uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 | uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7]),
		uint64(b[8])<<56 | uint64(b[9])<<48 | uint64(b[10])<<40 | uint64(b[11])<<32 | uint64(b[12])<<24 | uint64(b[13])<<16 | uint64(b[14])<<8 | uint64(b[15]),
	} {
		n = word
		var chunk [11]byte
		for i := len(chunk) - 1; i >= 0; i-- {
			chunk[i] = base62Alphabet[n%62]
			n /= 62
		}
		out.Write(chunk[:])
	}
	return out.String()
}

// WriteFile writes data to disk under a freshly minted file_id and returns
// the id plus absolute path. It does not touch the database — callers that
// produce an attachment mid-turn (tool handlers) defer the row insert to
// the turn's atomic commit; callers outside a turn use RegisterNow.
func (s *Store) WriteFile(filename string, data []byte) (fileID, absPath string, err error) {
	fileID = NewFileID(filename)
	absPath = filepath.Join(s.dir, fileID)
	tmp := absPath + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		return "", "", fmt.Errorf("finalize artifact: %w", err)
	}
	return fileID, absPath, nil
}

// RegisterNow writes the file and inserts its row in one step, unlinking
// the file if the insert fails, per spec §4.2's atomicity contract. Used
// by direct generator endpoints and uploads, which are not already part of
// an agent-loop turn commit.
func (s *Store) RegisterNow(ctx context.Context, kind, filename, contentType string, data []byte, teamID int64, projectID *int64, sessionID *string) (*store.Attachment, error) {
	fileID, absPath, err := s.WriteFile(filename, data)
	if err != nil {
		return nil, err
	}

	att := store.Attachment{
		FileID: fileID, Kind: kind, Filename: filename, ContentType: contentType,
		SizeBytes: int64(len(data)), TeamID: teamID, ProjectID: projectID, SessionID: sessionID,
		SourcePath: absPath,
	}

	// Direct-endpoint registrations (uploads, /docs/*) are not part of an
	// agent-loop turn, so the file_records row is inserted on its own
	// rather than folded into CommitTurn.
	if err := s.db.InsertAttachmentOnly(ctx, att); err != nil {
		os.Remove(absPath)
		return nil, err
	}
	return &att, nil
}

// IssueDownloadToken produces an HMAC-SHA256 token binding (file_id,
// team_id, expiry) to a server secret, URL-safe base64 encoded. Validation
// is a stateless recomputation; the token is not stored anywhere.
func (s *Store) IssueDownloadToken(fileID string, teamID int64, ttl time.Duration) string {
	expiry := time.Now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s.%d.%d", fileID, teamID, expiry)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
}

// ResolveForDownload validates token against (file_id, team_id) and, if
// valid and unexpired, returns the absolute path, content type, and
// filename. Mismatched team or tampered/expired tokens fail with Auth.
func (s *Store) ResolveForDownload(ctx context.Context, teamID int64, fileID, token string) (absPath, contentType, filename string, err error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", "", "", apierr.New(apierr.KindAuth, "malformed download token")
	}
	payloadBytes, decErr := base64.RawURLEncoding.DecodeString(parts[0])
	if decErr != nil {
		return "", "", "", apierr.New(apierr.KindAuth, "malformed download token")
	}
	payload := string(payloadBytes)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payloadBytes)
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expectedSig), []byte(parts[1])) {
		return "", "", "", apierr.New(apierr.KindAuth, "invalid download token")
	}

	fields := strings.Split(payload, ".")
	if len(fields) != 3 || fields[0] != fileID {
		return "", "", "", apierr.New(apierr.KindAuth, "token does not match file")
	}
	tokenTeamID, _ := strconv.ParseInt(fields[1], 10, 64)
	if tokenTeamID != teamID {
		return "", "", "", apierr.New(apierr.KindAuth, "token team mismatch")
	}
	expiry, _ := strconv.ParseInt(fields[2], 10, 64)
	if time.Now().Unix() > expiry {
		return "", "", "", apierr.New(apierr.KindAuth, "token expired")
	}

	att, err := s.db.GetAttachment(ctx, teamID, fileID)
	if err != nil {
		return "", "", "", err
	}
	return att.SourcePath, att.ContentType, att.Filename, nil
}

// ReadForTool returns the raw bytes of a previously produced artifact, used
// by the attachment_read tool; team scoping happens at the caller via
// GetAttachment.
func (s *Store) ReadForTool(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
