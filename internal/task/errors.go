package task

import "fmt"

// ConfigurationError covers a missing API key, an unrecognized model, or any
// other setup problem detected before the run starts. Permanent.
type ConfigurationError struct {
	Cause error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("task: configuration error: %s", e.Cause) }
func (e *ConfigurationError) Unwrap() error  { return e.Cause }

func NewConfigurationError(cause error) *ConfigurationError {
	return &ConfigurationError{Cause: cause}
}

// ProfileLoadError covers a browser profile directory that could not be
// created or accessed. Permanent.
type ProfileLoadError struct {
	Path  string
	Cause error
}

func (e *ProfileLoadError) Error() string {
	return fmt.Sprintf("task: could not load profile directory %q: %s", e.Path, e.Cause)
}
func (e *ProfileLoadError) Unwrap() error { return e.Cause }

func NewProfileLoadError(path string, cause error) *ProfileLoadError {
	return &ProfileLoadError{Path: path, Cause: cause}
}

// ServiceNotFoundError is raised by the registry when a service name does
// not resolve. Permanent.
type ServiceNotFoundError struct {
	Name string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("task: no service registered under name %q", e.Name)
}

func NewServiceNotFoundError(name string) *ServiceNotFoundError {
	return &ServiceNotFoundError{Name: name}
}

// SnapshotValidationError is raised by the snapshot parser when a required
// section is missing. Permanent.
type SnapshotValidationError struct {
	Excerpt string
}

func (e *SnapshotValidationError) Error() string {
	return fmt.Sprintf("task: snapshot is missing a required section; first 200 chars: %q", e.Excerpt)
}

func NewSnapshotValidationError(rawInput string) *SnapshotValidationError {
	excerpt := rawInput
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return &SnapshotValidationError{Excerpt: excerpt}
}

// CheckpointRejectedError marks a server-enforced checkpoint the human
// rejected. Permanent: the caller must terminate with ReasonHumanRejected.
type CheckpointRejectedError struct {
	Tool ToolCall
}

func (e *CheckpointRejectedError) Error() string {
	return fmt.Sprintf("task: human rejected checkpoint for tool %q", e.Tool.Name)
}

func NewCheckpointRejectedError(tool ToolCall) *CheckpointRejectedError {
	return &CheckpointRejectedError{Tool: tool}
}
