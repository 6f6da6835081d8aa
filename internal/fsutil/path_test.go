package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/fsutil"
)

func TestCheckName(t *testing.T) {
	for _, name := range []string{"TOOLS-001", "TOOLS-001_r1", "TOOLS-001_..", "01jabc"} {
		require.NoError(t, fsutil.CheckName(name), name)
	}
	for _, name := range []string{"", ".", "..", "../victim", "x/../../victim", `a\\b`, "a/b"} {
		require.Error(t, fsutil.CheckName(name), name)
	}
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{rel: "TOOLS/001", want: filepath.Join(base, "TOOLS", "001")},
		{rel: ".", want: base},
		{rel: "a/../b", want: filepath.Join(base, "b")},
		{rel: "../escape", wantErr: true},
		{rel: "a/../../escape", wantErr: true},
		{rel: "/etc", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.rel, func(t *testing.T) {
			got, err := fsutil.SafeJoin(base, tc.rel)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSafeJoinSiblingWithSharedPrefix(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ws")
	_, err := fsutil.SafeJoin(base, "../ws-other")
	require.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
