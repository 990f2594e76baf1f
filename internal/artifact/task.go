package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// sessionIDPattern matches the original_source session id shape
// (alphanumeric plus dash/underscore); used to keep task directory names
// predictable and free of path-injection surprises.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// TaskArtifact mirrors original_source/task_artifact_service.py's
// TaskArtifact: a side channel, separate from the chat transcript, that
// mirrors a long-running task's prompt/log/final-answer to disk inside the
// workspace so a human can tail it without going through the API.
type TaskArtifact struct {
	Dir       string
	PromptPath string
	LogPath    string
	AssistantPath string
	MetaPath      string
}

// PrepareTaskArtifact creates (or reuses) the on-disk directory for one
// task run, preferring <workspace>/.jetlinks-ai/tasks/<session_id>/<task_id>
// and falling back to the legacy <workspace>/.aistaff/tasks/... location,
// exactly as task_artifact_service.py's _tasks_root_in_workspace does. If
// the workspace itself can't be written to (read-only mount, escaped path),
// it falls back to <fallbackRoot>/tasks/<session_id>/<task_id> instead of
// failing the turn outright, matching the python service's data-dir escape
// hatch.
func PrepareTaskArtifact(workspaceRoot, fallbackRoot, sessionID, taskID string) (*TaskArtifact, error) {
	if !sessionIDPattern.MatchString(sessionID) || !sessionIDPattern.MatchString(taskID) {
		return nil, fmt.Errorf("invalid session or task id")
	}

	if dir, err := workspaceTaskDir(workspaceRoot, sessionID, taskID); err == nil {
		return newTaskArtifact(dir), nil
	}

	dir := filepath.Join(fallbackRoot, "tasks", sessionID, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback task artifact dir: %w", err)
	}
	return newTaskArtifact(dir), nil
}

func workspaceTaskDir(workspaceRoot, sessionID, taskID string) (string, error) {
	root, err := tasksRootInWorkspace(workspaceRoot)
	if err != nil {
		return "", err
	}
	// The tasks root is a sensitive segment that sandbox.Resolve refuses for
	// tool paths, so the directory is joined here directly: root is one of
	// two fixed names and both ids already matched sessionIDPattern.
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(absRoot, root, sessionID, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func newTaskArtifact(dir string) *TaskArtifact {
	return &TaskArtifact{
		Dir:           dir,
		PromptPath:    filepath.Join(dir, "prompt.txt"),
		LogPath:       filepath.Join(dir, "log.jsonl"),
		AssistantPath: filepath.Join(dir, "assistant.md"),
		MetaPath:      filepath.Join(dir, "meta.json"),
	}
}

// tasksRootInWorkspace prefers the current convention (.jetlinks-ai/tasks)
// but keeps reading/writing under the legacy .aistaff/tasks directory if
// that's what already exists in the workspace, matching the fallback in
// task_artifact_service.py.
func tasksRootInWorkspace(workspaceRoot string) (string, error) {
	legacy := filepath.Join(workspaceRoot, ".aistaff", "tasks")
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		return filepath.Join(".aistaff", "tasks"), nil
	}
	return filepath.Join(".jetlinks-ai", "tasks"), nil
}

func (t *TaskArtifact) WritePrompt(prompt string) error {
	return os.WriteFile(t.PromptPath, []byte(prompt), 0o644)
}

// AppendLog appends one JSON line to the task's log, used to mirror each
// agent-loop event as it is emitted so a human tailing the file sees
// progress in real time.
func (t *TaskArtifact) AppendLog(line string) error {
	f, err := os.OpenFile(t.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func (t *TaskArtifact) WriteAssistant(content string) error {
	return os.WriteFile(t.AssistantPath, []byte(content), 0o644)
}

// WriteMeta writes the base metadata block (task id, session id, started
// at, status) every task artifact carries, matching task_base_meta.
func (t *TaskArtifact) WriteMeta(taskID, sessionID, status string) error {
	meta := fmt.Sprintf(`{"task_id":%q,"session_id":%q,"status":%q,"updated_at":%q}`,
		taskID, sessionID, status, time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(t.MetaPath, []byte(meta), 0o644)
}
