package task_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/task"
)

func TestRunPathForID(t *testing.T) {
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "TOOLS-001", want: "TOOLS/001"},
		{id: "BUG-FIX-012", want: "BUG-FIX/012"},
		{id: "A-1", want: "A/1"},
		{id: "FEATURE2-100", want: "FEATURE2/100"},
		{id: "tools-001", wantErr: true},
		{id: "TOOLS001", wantErr: true},
		{id: "TOOLS-", wantErr: true},
		{id: "-001", wantErr: true},
		{id: "TOOLS-00a", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.id, func(t *testing.T) {
			got, err := task.RunPathForID(tc.id)
			if tc.wantErr {
				var fe *task.FormatError
				require.ErrorAs(t, err, &fe)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveDerivesDefaults(t *testing.T) {
	def, err := task.Resolver{}.Resolve(task.Raw{ID: "TOOLS-001", Prompt: "add a flag"})
	require.NoError(t, err)

	require.Equal(t, "TOOLS-001", def.ID)
	require.Equal(t, "TOOLS-001", def.Title)
	require.Equal(t, "tools", def.Category)
	require.Equal(t, task.DifficultyMedium, def.Difficulty)
	require.Equal(t, "TOOLS/001", def.RunPath())
	require.Equal(t, task.NoSource, def.Source.Repository)
	require.False(t, def.Source.HasRepository())
	require.Equal(t, "main", def.Source.Ref)
	require.Equal(t, "python3 verify.py", def.Verification.Command)
	require.Equal(t, 60, def.Verification.TimeoutSecs)
	require.True(t, def.Permissions.Read)
	require.False(t, def.Permissions.Write)
	require.NoError(t, def.Validate())
}

func TestResolveWellFormedIDsAlwaysValidate(t *testing.T) {
	for _, id := range []string{"TOOLS-001", "BUG-FIX-7", "REFACTOR-0420", "X-9"} {
		def, err := task.Resolver{}.Resolve(task.Raw{ID: id})
		require.NoError(t, err, id)
		require.NoError(t, def.Validate(), id)
	}
}

func TestResolveExplicitWinsOverDerived(t *testing.T) {
	write := true
	read := false
	raw := task.Raw{
		ID:         "TOOLS-001",
		Category:   "Feature",
		Difficulty: "Hard",
		Prompt:     "  do it  ",
		Source: &task.RawSource{
			Repository: "github.com/acme/widgets",
			Commit:     "abc1234",
			Path:       "sub/dir",
		},
		Verification: &task.RawVerification{
			Command: "make test",
			Timeout: 5,
		},
		Permissions: &task.RawPermissions{
			Mode:  "acceptEdits",
			Read:  &read,
			Write: &write,
		},
	}
	resolver := task.Resolver{
		Repository:    "github.com/acme/default",
		Ref:           "develop",
		VerifyCommand: "go test ./...",
		VerifyTimeout: 120,
	}

	def, err := resolver.Resolve(raw)
	require.NoError(t, err)
	require.Equal(t, "feature", def.Category)
	require.Equal(t, "hard", def.Difficulty)
	require.Equal(t, "do it", def.Prompt)
	require.Equal(t, "github.com/acme/widgets", def.Source.Repository)
	require.Equal(t, "abc1234", def.Source.Ref)
	require.Equal(t, "sub/dir", def.RunPath())
	require.Equal(t, "make test", def.Verification.Command)
	require.Equal(t, 5, def.Verification.TimeoutSecs)
	require.Equal(t, "acceptEdits", def.Permissions.Mode)
	require.False(t, def.Permissions.Read)
	require.True(t, def.Permissions.Write)
}

func TestResolveUsesResolverDefaults(t *testing.T) {
	resolver := task.Resolver{
		Repository:    "github.com/acme/default",
		Ref:           "develop",
		VerifyCommand: "go test ./...",
		VerifyTimeout: 120,
	}
	def, err := resolver.Resolve(task.Raw{ID: "TOOLS-002"})
	require.NoError(t, err)
	require.Equal(t, "github.com/acme/default", def.Source.Repository)
	require.Equal(t, "develop", def.Source.Ref)
	require.Equal(t, "go test ./...", def.Verification.Command)
	require.Equal(t, 120, def.Verification.TimeoutSecs)
}

func TestResolveRefWinsOverCommit(t *testing.T) {
	def, err := task.Resolver{}.Resolve(task.Raw{
		ID:     "TOOLS-003",
		Source: &task.RawSource{Ref: "v1.2.0", Commit: "abc1234"},
	})
	require.NoError(t, err)
	require.Equal(t, "v1.2.0", def.Source.Ref)
}

func TestResolveLegacyWebFetchPermission(t *testing.T) {
	on := true
	def, err := task.Resolver{}.Resolve(task.Raw{
		ID:          "TOOLS-004",
		Permissions: &task.RawPermissions{WebFetch: &on},
	})
	require.NoError(t, err)
	require.True(t, def.Permissions.Network)
}

func TestResolveMalformedID(t *testing.T) {
	_, err := task.Resolver{}.Resolve(task.Raw{ID: "not-an-id"})
	var fe *task.FormatError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, "not-an-id", fe.ID)
}

func TestResolveMalformedIDWithExplicitPath(t *testing.T) {
	def, err := task.Resolver{}.Resolve(task.Raw{
		ID:       "custom_task",
		Category: "tools",
		Source:   &task.RawSource{Path: "custom/task"},
	})
	require.NoError(t, err)
	require.Equal(t, "custom/task", def.RunPath())
}

func TestResolveRejectsIDsThatAreNotDirectoryNames(t *testing.T) {
	for _, id := range []string{"../victim", "a/b", "..", `a\\b`} {
		_, err := task.Resolver{}.Resolve(task.Raw{
			ID:       id,
			Category: "tools",
			Source:   &task.RawSource{Path: "sub"},
		})
		var fe *task.FormatError
		require.ErrorAs(t, err, &fe, id)
	}
}

func TestResolveRejectsEscapingPath(t *testing.T) {
	for _, p := range []string{"../outside", "/abs/path", "a/../../b"} {
		_, err := task.Resolver{}.Resolve(task.Raw{
			ID:     "TOOLS-001",
			Source: &task.RawSource{Path: p},
		})
		var fe *task.FormatError
		require.ErrorAs(t, err, &fe, p)
	}
}

func TestResolveRejectsUnknownDifficulty(t *testing.T) {
	_, err := task.Resolver{}.Resolve(task.Raw{ID: "TOOLS-001", Difficulty: "impossible"})
	var fe *task.FormatError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, fe.Error(), "difficulty")
}

func TestValidateRejectsEmptyCommand(t *testing.T) {
	def, err := task.Resolver{}.Resolve(task.Raw{ID: "TOOLS-001"})
	require.NoError(t, err)

	broken := *def
	broken.Verification.Command = "  "
	var fe *task.FormatError
	require.ErrorAs(t, broken.Validate(), &fe)
}
