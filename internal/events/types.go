package events

// Event type constants for kelindar/event.
const (
	TypeSplitStarted uint32 = iota + 1
	TypeSegmentEncoded
	TypeSplitCompleted
	TypeSplitFailed
	TypeSessionCleared
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SplitStartedEvent is published when a split or re-split begins.
type SplitStartedEvent struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Parts     int    `json:"parts"`
	Resplit   bool   `json:"resplit"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for SplitStartedEvent.
func (e SplitStartedEvent) Type() uint32 { return TypeSplitStarted }

// SegmentEncodedEvent is published after each part is written.
type SegmentEncodedEvent struct {
	SessionID string `json:"session_id"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
}

// Type returns the event type identifier for SegmentEncodedEvent.
func (e SegmentEncodedEvent) Type() uint32 { return TypeSegmentEncoded }

// SplitCompletedEvent is published when every part was produced.
type SplitCompletedEvent struct {
	SessionID string   `json:"session_id"`
	Parts     int      `json:"parts"`
	Files     []string `json:"files"`
	Elapsed   float64  `json:"elapsed_seconds"`
	Timestamp string   `json:"timestamp"`
}

// Type returns the event type identifier for SplitCompletedEvent.
func (e SplitCompletedEvent) Type() uint32 { return TypeSplitCompleted }

// SplitFailedEvent is published when a split ends with an error.
type SplitFailedEvent struct {
	SessionID string `json:"session_id"`
	Parts     int    `json:"parts"`
	// Segment is the 1-indexed failed part, 0 when the failure was not per part.
	Segment   int    `json:"segment"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for SplitFailedEvent.
func (e SplitFailedEvent) Type() uint32 { return TypeSplitFailed }

// SessionClearedEvent is published when a session is cleared or deleted.
type SessionClearedEvent struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for SessionClearedEvent.
func (e SessionClearedEvent) Type() uint32 { return TypeSessionCleared }
