package session

import "time"

// UpdateType identifies the payload carried by an Update.
type UpdateType string

const (
	UpdateStatus    UpdateType = "status"
	UpdateCountdown UpdateType = "countdown"
	UpdateQuality   UpdateType = "quality"
	UpdateLog       UpdateType = "log"
)

// Update is an outbound notification from a session. Exactly one of the
// payload fields is set, matching Type.
type Update struct {
	SessionID string        `json:"session_id"`
	DeviceID  string        `json:"device_id"`
	Type      UpdateType    `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Status    *StatusChange `json:"status,omitempty"`
	Countdown *Countdown    `json:"countdown,omitempty"`
	Quality   *QualityInfo  `json:"quality,omitempty"`
	Log       *LogDelta     `json:"log,omitempty"`
}

// StatusChange is a status notification. Persistent notifications must be
// acknowledged by the operator and are never auto-dismissed.
type StatusChange struct {
	Status     Status `json:"status"`
	Reason     Reason `json:"reason"`
	Message    string `json:"message"`
	Persistent bool   `json:"persistent,omitempty"`
}

// Countdown is the periodic remaining-time display update.
type Countdown struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
	DurationSeconds  int64 `json:"duration_seconds"`
}

// QualityInfo reports one connection quality sample.
type QualityInfo struct {
	LatencyMs int64 `json:"latency_ms"`
	Tier      Tier  `json:"quality_tier"`
}

// LogDelta carries entries appended to a sub-session log since the last
// delta. Cleared means the log was wiped before Entries were appended.
type LogDelta struct {
	View    ViewKind   `json:"view"`
	Phase   Phase      `json:"phase"`
	Entries []LogEntry `json:"entries,omitempty"`
	Cleared bool       `json:"cleared,omitempty"`
}

// Listener receives session updates on the session loop goroutine.
// It must not block.
type Listener func(Update)

func statusMessage(r Reason) string {
	switch r {
	case ReasonOpened:
		return "Remote session started"
	case ReasonDegraded:
		return "Connection quality degraded"
	case ReasonConnectionLost:
		return "Connection lost. Attempting to reconnect..."
	case ReasonManualReconnect:
		return "Reconnecting to device..."
	case ReasonReconnected:
		return "Reconnected successfully"
	case ReasonExpiryWarning:
		return "Session expiring soon"
	case ReasonExpired:
		return "Session expired"
	case ReasonExtended:
		return "Session extended"
	case ReasonEnded:
		return "Session ended"
	case ReasonShutdown:
		return "Session closed by server shutdown"
	default:
		return string(r)
	}
}
