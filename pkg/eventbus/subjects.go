package eventbus

import "fmt"

const (
	// SubjectPrefix is the canonical prefix for memory lifecycle events.
	SubjectPrefix = "recallhub.v1.memory"
)

// Event types published by the memory engine.
const (
	EventTurnRecorded = "turn_recorded"
	EventUserErased   = "user_erased"
)

// MemorySubject returns the canonical subject for a user's memory events.
func MemorySubject(userID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sanitizeSegment(userID), sanitizeSegment(eventType))
}

// UserWildcardSubject returns the wildcard subject covering every event for
// one user.
func UserWildcardSubject(userID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sanitizeSegment(userID))
}

// AllSubjects returns the wildcard subject covering every memory event.
func AllSubjects() string {
	return SubjectPrefix + ".>"
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
