package store

// Status is the processing state of a record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a summarization run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record in from may move to to.
// Terminal states are only reachable from processing; processing is reachable from anywhere.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusProcessing:
		return from.Valid()
	case StatusCompleted, StatusFailed:
		return from == StatusProcessing
	}
	return false
}
