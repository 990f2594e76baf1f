package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

func TestResolveWithinRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(root, "notes.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want, _ := filepath.EvalSymlinks(filepath.Join(root, "notes.txt"))
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveEscape(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../etc/passwd")
	if apierr.KindOf(err) != apierr.KindPathEscape {
		t.Fatalf("expected PathEscape, got %v", err)
	}
}

func TestResolveSensitiveEnv(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, ".env")
	if apierr.KindOf(err) != apierr.KindSensitivePath {
		t.Fatalf("expected SensitivePath for .env, got %v", err)
	}

	if _, err := Resolve(root, ".env.example"); err != nil {
		t.Fatalf(".env.example should be allowed, got %v", err)
	}
}

func TestResolveSensitiveDir(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".aistaff", ".jetlinks-ai"} {
		_, err := Resolve(root, dir+"/tasks/x.json")
		if apierr.KindOf(err) != apierr.KindSensitivePath {
			t.Errorf("expected SensitivePath for %s segment, got %v", dir, err)
		}
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := Resolve(root, "link.txt")
	if apierr.KindOf(err) != apierr.KindPathEscape {
		t.Fatalf("expected PathEscape for symlink escape, got %v", err)
	}
}

func TestRelativeToRoundTrip(t *testing.T) {
	root := t.TempDir()
	abs, err := Resolve(root, "sub/dir/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	rel, err := RelativeTo(root, abs)
	if err != nil {
		t.Fatalf("RelativeTo: %v", err)
	}
	back, err := Resolve(root, rel)
	if err != nil {
		t.Fatalf("Resolve(back): %v", err)
	}
	if back != abs {
		t.Errorf("round trip mismatch: got %q, want %q", back, abs)
	}
}
