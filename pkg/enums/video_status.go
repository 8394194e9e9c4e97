package enums

import "fmt"

// VideoStatus describes the lifecycle state of a submitted video.
type VideoStatus string

const (
	VideoStatusUploading  VideoStatus = "uploading"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusErrored    VideoStatus = "errored"
	VideoStatusDeleted    VideoStatus = "deleted"
)

var validVideoStatuses = []VideoStatus{
	VideoStatusUploading,
	VideoStatusProcessing,
	VideoStatusReady,
	VideoStatusErrored,
	VideoStatusDeleted,
}

// String returns the literal string for the status.
func (s VideoStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s VideoStatus) IsValid() bool {
	for _, candidate := range validVideoStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the webhook path may still move the row forward.
// Deleted is the only hard-terminal state; errored rows stay eligible for the
// reconciliation sweep so a late ready can still win.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusDeleted
}

// ParseVideoStatus converts raw input into a VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, error) {
	for _, candidate := range validVideoStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid video status %q", value)
}
