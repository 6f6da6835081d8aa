package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/logging"
)

// GitCloner implements Cloner with the git binary. Commands always run with an explicit directory; the
// process working directory is never changed.
type GitCloner struct {
	logger logrus.FieldLogger
}

func NewGitCloner(logger logrus.FieldLogger) *GitCloner {
	return &GitCloner{logger: logging.OrNoop(logger)}
}

func (g *GitCloner) Clone(ctx context.Context, repoURL, dest string) error {
	_, err := g.run(ctx, "", "clone", NormalizeRepoURL(repoURL), dest)
	return err
}

func (g *GitCloner) Checkout(ctx context.Context, dir, ref string) error {
	_, err := g.run(ctx, dir, "checkout", ref)
	return err
}

func (g *GitCloner) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	g.logger.Debugf("git %s", strings.Join(args, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("git %s: %w\n%s", args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// NormalizeRepoURL returns a cloneable repo URL. Host-relative forms like "github.com/org/repo" get an
// https:// scheme.
func NormalizeRepoURL(repo string) string {
	if strings.HasPrefix(repo, "http://") ||
		strings.HasPrefix(repo, "https://") ||
		strings.HasPrefix(repo, "ssh://") ||
		strings.HasPrefix(repo, "git@") ||
		strings.HasPrefix(repo, "file://") ||
		filepath.IsAbs(repo) {
		return repo
	}
	return "https://" + repo
}
