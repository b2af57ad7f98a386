package session

// Status is the overall status of a remote-access session.
type Status string

const (
	// StatusActive means the session is connected and healthy.
	StatusActive Status = "active"
	// StatusDegraded means the connection is up but quality dropped.
	StatusDegraded Status = "degraded"
	// StatusReconnecting means the transport is being re-established.
	StatusReconnecting Status = "reconnecting"
	// StatusExpired is terminal: the session ran past its expiry time.
	StatusExpired Status = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDegraded, StatusReconnecting, StatusExpired:
		return true
	}
	return false
}

// Reason identifies why a status notification was emitted.
type Reason string

const (
	ReasonOpened          Reason = "opened"
	ReasonDegraded        Reason = "connection_degraded"
	ReasonConnectionLost  Reason = "connection_lost"
	ReasonManualReconnect Reason = "manual_reconnect"
	ReasonReconnected     Reason = "reconnected"
	ReasonExpiryWarning   Reason = "expiry_warning"
	ReasonExpired         Reason = "expired"
	ReasonExtended        Reason = "extended"
	ReasonEnded           Reason = "ended"
	ReasonShutdown        Reason = "shutdown"
)

// ViewKind selects one of the two transport-facing sub-sessions.
type ViewKind string

const (
	ViewTerminal    ViewKind = "terminal"
	ViewFramebuffer ViewKind = "framebuffer"
)

// ParseViewKind converts user input into a ViewKind.
func ParseViewKind(s string) (ViewKind, bool) {
	switch ViewKind(s) {
	case ViewTerminal, ViewFramebuffer:
		return ViewKind(s), true
	}
	return "", false
}

// Phase is the connect phase of a sub-session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseReady      Phase = "ready"
)
