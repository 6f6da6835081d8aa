package task

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/codalotl/agentbench/internal/logging"
)

// LoadFile reads one task declaration from a YAML file.
func LoadFile(path string) (*Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw Raw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}
	return &raw, nil
}

// Loader enumerates the task declarations under a directory.
type Loader struct {
	dir      string
	resolver Resolver
	logger   logrus.FieldLogger
}

func NewLoader(dir string, resolver Resolver, logger logrus.FieldLogger) *Loader {
	return &Loader{
		dir:      dir,
		resolver: resolver,
		logger:   logging.OrNoop(logger).WithField("svc", "task.Loader"),
	}
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// LoadAll loads every *.yaml and *.yml file under the loader's directory, in lexical walk order.
// Declarations that fail to parse or resolve are logged and skipped, as are duplicate IDs (the first one
// wins). A missing directory yields no tasks.
func (l *Loader) LoadAll() ([]*Definition, error) {
	if _, err := os.Stat(l.dir); errors.Is(err, fs.ErrNotExist) {
		l.logger.Warnf("Tasks directory %s does not exist", l.dir)
		return nil, nil
	}

	var defs []*Definition
	seen := map[string]string{}
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTaskFile(path) {
			return nil
		}
		logger := l.logger.WithField("file", path)
		raw, err := LoadFile(path)
		if err != nil {
			logger.Warnf("Skipping task file: %v", err)
			return nil
		}
		def, err := l.resolver.Resolve(*raw)
		if err != nil {
			logger.Warnf("Skipping task file: %v", err)
			return nil
		}
		if first, ok := seen[def.ID]; ok {
			logger.Warnf("Skipping duplicate task %s (first declared in %s)", def.ID, first)
			return nil
		}
		seen[def.ID] = path
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debugf("Loaded %d tasks from %s", len(defs), l.dir)
	return defs, nil
}

// LoadByID returns the task with the given ID or a *NotFoundError.
func (l *Loader) LoadByID(id string) (*Definition, error) {
	defs, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.ID == id {
			return def, nil
		}
	}
	return nil, &NotFoundError{ID: id}
}

// LoadCategory returns the tasks whose category matches category, ignoring case.
func (l *Loader) LoadCategory(category string) ([]*Definition, error) {
	defs, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	var out []*Definition
	for _, def := range defs {
		if strings.EqualFold(def.Category, category) {
			out = append(out, def)
		}
	}
	return out, nil
}

func isTaskFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
