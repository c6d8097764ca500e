package model

type EventType string

const (
	EventSessionJoined     EventType = "session:joined"
	EventSessionScanned    EventType = "session:scanned"
	EventBiometricVerified EventType = "biometric:verified"
	EventVoteCast          EventType = "vote:cast"
	EventSessionExpired    EventType = "session:expired"
)

// Event is one best-effort notification on a session. Delivery is
// fire-and-forget: a device that misses an event recovers by re-reading
// session state.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	// BiometricID is set only for biometric:verified.
	BiometricID string `json:"biometric_id,omitempty"`
	// Origin identifies the publishing instance so the NATS bridge can drop
	// echoes of its own events.
	Origin string `json:"origin,omitempty"`
}
