package workspace

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/task"
)

// DefaultRoot is where workspaces live when nothing else is configured.
const DefaultRoot = "/tmp/agent-bench"

// Cloner provisions repository contents into a workspace.
type Cloner interface {
	Clone(ctx context.Context, repoURL, dest string) error
	Checkout(ctx context.Context, dir, ref string) error
}

// Error reports a failure to provision or locate a workspace.
type Error struct {
	TaskID string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workspace %s for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager owns the workspace directories under a single root. Each (task, run ID) pair maps to its own
// directory, so concurrent runs of one task never share state.
type Manager struct {
	root   string
	cloner Cloner
	logger logrus.FieldLogger
}

func NewManager(root string, cloner Cloner, logger logrus.FieldLogger) *Manager {
	if root == "" {
		root = DefaultRoot
	}
	logger = logging.OrNoop(logger).WithField("svc", "workspace.Manager")
	if cloner == nil {
		cloner = NewGitCloner(logger)
	}
	return &Manager{
		root:   root,
		cloner: cloner,
		logger: logger,
	}
}

// Root returns the directory that holds every workspace.
func (m *Manager) Root() string {
	return m.root
}

// Dir returns the workspace directory for a task and run ID. An empty runID gives the single-run layout.
// The directory is always a direct child of the root; IDs that would place it elsewhere are rejected.
func (m *Manager) Dir(taskID, runID string) (string, error) {
	name := taskID
	if runID != "" {
		name = taskID + "_" + runID
	}
	if err := fsutil.CheckName(name); err != nil {
		return "", &Error{TaskID: taskID, Op: "resolve", Err: err}
	}
	dir, err := fsutil.SafeJoin(m.root, name)
	if err != nil {
		return "", &Error{TaskID: taskID, Op: "resolve", Err: err}
	}
	return dir, nil
}

// Prepare deletes any existing workspace for (def, runID), recreates it, and clones the task's
// repository into it unless the repository is task.NoSource. Refs that name a default branch are not
// checked out. It returns the workspace root. When cloning or checkout fails the partial workspace is
// removed.
func (m *Manager) Prepare(ctx context.Context, def *task.Definition, runID string) (string, error) {
	dir, err := m.Dir(def.ID, runID)
	if err != nil {
		return "", err
	}
	logger := m.logger.WithFields(logrus.Fields{"task": def.ID, "workspace": dir})

	if err := os.RemoveAll(dir); err != nil {
		return "", &Error{TaskID: def.ID, Op: "reset", Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{TaskID: def.ID, Op: "create", Err: err}
	}

	if !def.Source.HasRepository() {
		logger.Debugf("Created empty workspace")
		return dir, nil
	}

	logger.Infof("Cloning %s", def.Source.Repository)
	if err := m.cloner.Clone(ctx, def.Source.Repository, dir); err != nil {
		m.discard(dir)
		return "", &Error{TaskID: def.ID, Op: "clone", Err: err}
	}
	if isDefaultBranch(def.Source.Ref) {
		return dir, nil
	}
	logger.Infof("Checking out %s", def.Source.Ref)
	if err := m.cloner.Checkout(ctx, dir, def.Source.Ref); err != nil {
		m.discard(dir)
		return "", &Error{TaskID: def.ID, Op: "checkout", Err: err}
	}
	return dir, nil
}

func (m *Manager) discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warnf("Could not remove partial workspace %s: %v", dir, err)
	}
}

// AgentPath returns the directory the agent works in: the workspace joined with the task's run path.
func (m *Manager) AgentPath(def *task.Definition, runID string) (string, error) {
	dir, err := m.Dir(def.ID, runID)
	if err != nil {
		return "", err
	}
	p, err := fsutil.SafeJoin(dir, def.RunPath())
	if err != nil {
		return "", &Error{TaskID: def.ID, Op: "resolve", Err: err}
	}
	return p, nil
}

// Cleanup removes the workspace for (def, runID).
func (m *Manager) Cleanup(def *task.Definition, runID string) error {
	dir, err := m.Dir(def.ID, runID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &Error{TaskID: def.ID, Op: "cleanup", Err: err}
	}
	m.logger.WithField("task", def.ID).Debugf("Removed workspace %s", dir)
	return nil
}

func isDefaultBranch(ref string) bool {
	switch strings.TrimSpace(ref) {
	case "", "main", "master", "HEAD":
		return true
	default:
		return false
	}
}
