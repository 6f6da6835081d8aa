package task

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/codalotl/agentbench/internal/fsutil"
)

// Raw is a task declaration as written in a YAML file. Any field may be absent; Resolve fills the gaps.
type Raw struct {
	ID            string           `yaml:"id"`
	Title         string           `yaml:"title"`
	Category      string           `yaml:"category"`
	Difficulty    string           `yaml:"difficulty"`
	Prompt        string           `yaml:"prompt"`
	Source        *RawSource       `yaml:"source"`
	Verification  *RawVerification `yaml:"verification"`
	Permissions   *RawPermissions  `yaml:"permissions"`
	Metadata      RawMetadata      `yaml:"metadata"`
	MaxIterations int              `yaml:"max_iterations"`
}

type RawSource struct {
	Repository string `yaml:"repository"`
	// Ref wins over Commit when both are set.
	Ref    string `yaml:"ref"`
	Commit string `yaml:"commit"`
	Path   string `yaml:"path"`
}

type RawVerification struct {
	Type    string `yaml:"type"`
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout"`
}

type RawPermissions struct {
	Mode     string `yaml:"mode"`
	Read     *bool  `yaml:"read"`
	Write    *bool  `yaml:"write"`
	Bash     *bool  `yaml:"bash"`
	Network  *bool  `yaml:"network"`
	WebFetch *bool  `yaml:"web_fetch"`
}

type RawMetadata struct {
	Tags  []string       `yaml:"tags"`
	Extra map[string]any `yaml:",inline"`
}

// Built-in defaults used when a Resolver field is empty.
const (
	DefaultRef           = "main"
	DefaultVerifyType    = "script"
	DefaultVerifyCommand = "python3 verify.py"
	DefaultVerifyTimeout = 60
)

// Resolver turns Raw declarations into Definitions. The zero value uses the built-in defaults.
type Resolver struct {
	// Repository is used when a declaration has no source repository. Empty means NoSource.
	Repository string
	// Ref is used when a declaration has no source ref. Empty means DefaultRef.
	Ref string
	// VerifyCommand is used when a declaration has no verification command. It runs from the run path.
	VerifyCommand string
	// VerifyTimeout (seconds) is used when a declaration has no verification timeout.
	VerifyTimeout int
}

var idPattern = regexp.MustCompile(`^([A-Z][A-Z0-9-]*)-([0-9]+)$`)

// RunPathForID derives the run path for a task ID: "TOOLS-001" becomes "TOOLS/001". The prefix is
// everything before the final hyphen.
func RunPathForID(id string) (string, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", &FormatError{ID: id, Reason: "id must look like CATEGORY-NNN (e.g. TOOLS-001)"}
	}
	return m[1] + "/" + m[2], nil
}

// Resolve applies explicit-over-derived precedence to every field of raw and validates the result.
func (r Resolver) Resolve(raw Raw) (*Definition, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return nil, &FormatError{Reason: "id is required"}
	}

	var src RawSource
	if raw.Source != nil {
		src = *raw.Source
	}
	runPath := strings.TrimSpace(src.Path)
	if runPath == "" {
		derived, err := RunPathForID(id)
		if err != nil {
			return nil, err
		}
		runPath = derived
	}
	runPath, err := cleanRunPath(runPath)
	if err != nil {
		return nil, &FormatError{ID: id, Reason: err.Error()}
	}

	def := &Definition{
		ID:            id,
		Title:         firstNonEmpty(raw.Title, id),
		Category:      strings.ToLower(firstNonEmpty(raw.Category, categoryForID(id))),
		Difficulty:    strings.ToLower(firstNonEmpty(raw.Difficulty, DifficultyMedium)),
		Prompt:        strings.TrimSpace(raw.Prompt),
		MaxIterations: raw.MaxIterations,
		Source: Source{
			Repository: firstNonEmpty(src.Repository, r.Repository, NoSource),
			Ref:        firstNonEmpty(src.Ref, src.Commit, r.Ref, DefaultRef),
			Path:       runPath,
		},
		Verification: r.verification(raw.Verification),
		Permissions:  resolvePermissions(raw.Permissions),
		Metadata: Metadata{
			Tags:  raw.Metadata.Tags,
			Extra: raw.Metadata.Extra,
		},
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (r Resolver) verification(raw *RawVerification) Verification {
	var v RawVerification
	if raw != nil {
		v = *raw
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = r.VerifyTimeout
	}
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return Verification{
		Type:        firstNonEmpty(v.Type, DefaultVerifyType),
		Command:     firstNonEmpty(v.Command, r.VerifyCommand, DefaultVerifyCommand),
		TimeoutSecs: timeout,
	}
}

func resolvePermissions(raw *RawPermissions) Permissions {
	p := Permissions{Read: true}
	if raw == nil {
		return p
	}
	p.Mode = strings.TrimSpace(raw.Mode)
	if raw.Read != nil {
		p.Read = *raw.Read
	}
	if raw.Write != nil {
		p.Write = *raw.Write
	}
	if raw.Bash != nil {
		p.Bash = *raw.Bash
	}
	switch {
	case raw.Network != nil:
		p.Network = *raw.Network
	case raw.WebFetch != nil:
		p.Network = *raw.WebFetch
	}
	return p
}

// Validate checks the invariants every resolved Definition satisfies. An empty prompt is allowed here;
// agent backends reject it at execution time.
func (d *Definition) Validate() error {
	fail := func(reason string) error {
		return &FormatError{ID: d.ID, Reason: reason}
	}
	if d.ID == "" {
		return fail("id is required")
	}
	if err := fsutil.CheckName(d.ID); err != nil {
		return fail(fmt.Sprintf("id must be usable as a directory name: %v", err))
	}
	if d.Category == "" {
		return fail("category is required")
	}
	switch d.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fail(fmt.Sprintf("difficulty %q must be one of easy, medium, hard", d.Difficulty))
	}
	if d.Source.Repository == "" {
		return fail("source repository is required")
	}
	if d.Source.Ref == "" {
		return fail("source ref is required")
	}
	if d.Source.Path == "" {
		return fail("source path is required")
	}
	if strings.TrimSpace(d.Verification.Command) == "" {
		return fail("verification command is required")
	}
	if d.Verification.TimeoutSecs <= 0 {
		return fail("verification timeout must be positive")
	}
	if d.MaxIterations < 0 {
		return fail("max_iterations cannot be negative")
	}
	return nil
}

// cleanRunPath normalizes p to a slash-separated relative path that stays inside the workspace.
func cleanRunPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if path.IsAbs(p) {
		return "", errors.New("source path must be relative")
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New("source path cannot point outside the workspace")
	}
	return clean, nil
}

func categoryForID(id string) string {
	if m := idPattern.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
