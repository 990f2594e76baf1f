package artifact

import "testing"

func TestZZDebugWorkspaceTaskDir(t *testing.T) {
	dir := t.TempDir()
	d, err := workspaceTaskDir(dir, "sess-mirror-1", "11111111-1111-1111-1111-111111111111")
	t.Logf("dir=%s got=%s err=%v", dir, d, err)
}
