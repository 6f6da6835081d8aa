package task

import "fmt"

// FormatError reports a task declaration that cannot be turned into a valid Definition.
type FormatError struct {
	ID     string
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.ID != "" && e.Path != "":
		return fmt.Sprintf("task %q (%s): %s", e.ID, e.Path, e.Reason)
	case e.ID != "":
		return fmt.Sprintf("task %q: %s", e.ID, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("task file %s: %s", e.Path, e.Reason)
	default:
		return "task: " + e.Reason
	}
}

// NotFoundError is returned when no loaded task has the requested ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.ID)
}
