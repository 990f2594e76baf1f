package artifact

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aistaff-ai/agentcore/internal/store"
)

func openTestArtifactStore(t *testing.T) (*Store, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open("sqlite://" + filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	artifacts, err := New(filepath.Join(dir, "outputs"), db, "test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return artifacts, db
}

func TestGCWorkerSweepUnlinksOldUnreferencedFiles(t *testing.T) {
	artifacts, db := openTestArtifactStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "orphan.txt")
	if err := os.WriteFile(path, []byte("gone soon"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}
	if err := db.InsertAttachmentOnly(ctx, store.Attachment{
		FileID: "file-orphan", Kind: "doc", Filename: "orphan.txt", ContentType: "text/plain",
		SizeBytes: 9, TeamID: 1, SourcePath: path,
	}); err != nil {
		t.Fatalf("InsertAttachmentOnly: %v", err)
	}
	if err := db.DeleteAttachment(ctx, 1, "file-orphan"); err != nil {
		t.Fatalf("DeleteAttachment: %v", err)
	}

	worker := NewGCWorker(artifacts, GCConfig{Interval: time.Hour, GracePeriod: -time.Hour}, slog.Default())
	report := worker.SweepOnce(ctx)

	if report.Scanned != 1 || report.Unlinked != 1 || report.Errors != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be unlinked, stat err = %v", path, err)
	}
	if _, err := db.GetAttachment(ctx, 1, "file-orphan"); err == nil {
		t.Fatalf("expected file_records row to be purged")
	}
}

func TestGCWorkerSweepSkipsReferencedFiles(t *testing.T) {
	artifacts, db := openTestArtifactStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "still-used.txt")
	if err := os.WriteFile(path, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}

	turn := store.TurnCommit{
		Session:     store.Session{SessionID: "sess-gc", TeamID: 1, Role: "general", Provider: "native", Model: "m"},
		UserMessage: store.Message{SessionID: "sess-gc", TeamID: 1, Ordinal: 1, Role: store.RoleUser, Content: "hi"},
		ProducedMessages: []store.Message{
			{SessionID: "sess-gc", TeamID: 1, Ordinal: 2, Role: store.RoleAssistant, Content: "here"},
		},
		Attachments: []store.Attachment{
			{FileID: "file-used", Kind: "doc", Filename: "still-used.txt", ContentType: "text/plain", SizeBytes: 7, TeamID: 1, SourcePath: path},
		},
		OutputLinks: []store.MessageAttachmentLink{{MessageIndex: 0, FileID: "file-used", Direction: "output"}},
	}
	if err := db.CommitTurn(ctx, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}
	if err := db.DeleteAttachment(ctx, 1, "file-used"); err != nil {
		t.Fatalf("DeleteAttachment: %v", err)
	}

	worker := NewGCWorker(artifacts, GCConfig{Interval: time.Hour, GracePeriod: -time.Hour}, slog.Default())
	report := worker.SweepOnce(ctx)

	if report.Skipped != 1 || report.Unlinked != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to survive GC while referenced: %v", path, err)
	}
}
