package types

import "time"

// EventType 标识运行进度事件。
type EventType string

const (
	EventRowStarted      EventType = "row_started"
	EventAttemptFinished EventType = "attempt_finished"
	EventRowFinished     EventType = "row_finished"
	EventRunFinished     EventType = "run_finished"
)

// Event is one progress notification from the run loop. Fields not
// relevant to Type are left zero.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source,omitempty"`
	Row       int       `json:"row"`
	Name      string    `json:"name,omitempty"`
	TotalRows int       `json:"total_rows,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Egress    string    `json:"egress,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Remarks   string    `json:"remarks,omitempty"`
	Error     string    `json:"error,omitempty"`
	Available int       `json:"available_egress"`
	At        time.Time `json:"at"`
}
