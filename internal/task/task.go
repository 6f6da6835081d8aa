package task

import (
	"time"
)

// NoSource is the repository sentinel for tasks that start from an empty workspace.
const NoSource = "none"

// Difficulty levels accepted in task declarations.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Definition is a fully resolved task. It is never modified after Resolve returns it, so one Definition
// may be executed many times (and concurrently).
type Definition struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Category      string       `json:"category"`
	Difficulty    string       `json:"difficulty"`
	Prompt        string       `json:"prompt"`
	Source        Source       `json:"source"`
	Verification  Verification `json:"verification"`
	Permissions   Permissions  `json:"permissions"`
	Metadata      Metadata     `json:"metadata"`
	MaxIterations int          `json:"max_iterations,omitempty"`
}

type Source struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
	// Path is the run path: the directory, relative to the workspace root, where the agent works and
	// verification runs.
	Path string `json:"path"`
}

// HasRepository reports whether the workspace must be cloned from a repository.
func (s Source) HasRepository() bool {
	return s.Repository != "" && s.Repository != NoSource
}

type Verification struct {
	Type        string `json:"type"`
	Command     string `json:"command"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// Timeout returns the verification timeout as a duration.
func (v Verification) Timeout() time.Duration {
	return time.Duration(v.TimeoutSecs) * time.Second
}

// Permissions are the capabilities an agent backend may grant the agent.
type Permissions struct {
	Mode    string `json:"mode,omitempty"`
	Read    bool   `json:"read"`
	Write   bool   `json:"write"`
	Bash    bool   `json:"bash"`
	Network bool   `json:"network"`
}

type Metadata struct {
	Tags  []string       `json:"tags,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// RunPath returns the task's path relative to the workspace root.
func (d *Definition) RunPath() string {
	return d.Source.Path
}
