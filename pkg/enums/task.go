package enums

import "fmt"

// TaskKind identifies the handler a background task is dispatched to.
type TaskKind string

const (
	TaskKindIngest TaskKind = "ingest"
	TaskKindExport TaskKind = "export"
	TaskKindNotify TaskKind = "notify"
)

var validTaskKinds = []TaskKind{
	TaskKindIngest,
	TaskKindExport,
	TaskKindNotify,
}

// IsValid reports whether the value is a known TaskKind.
func (k TaskKind) IsValid() bool {
	for _, candidate := range validTaskKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTaskKind converts raw input into a TaskKind.
func ParseTaskKind(value string) (TaskKind, error) {
	for _, candidate := range validTaskKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task kind %q", value)
}

// TaskStatus is the externally visible execution state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusNotFound  TaskStatus = "not_found"
)

var validTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusSucceeded,
	TaskStatusFailed,
}

// IsValid reports whether the value can be persisted on a task row.
func (s TaskStatus) IsValid() bool {
	for _, candidate := range validTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinished reports whether the task has reached an outcome.
func (s TaskStatus) IsFinished() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}
