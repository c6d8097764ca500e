package model

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionScanned   SessionStatus = "scanned"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionExpired
}

type FlowType string

const (
	// FlowQR is the two-device flow: the laptop shows a QR code and a phone
	// performs the fingerprint verification.
	FlowQR FlowType = "qr"
	// FlowDirect is the single-device flow for laptops with a sensor.
	FlowDirect FlowType = "direct"
)

// Session is one voting attempt with a fixed time window. Sessions are never
// deleted; terminal rows stay behind as an audit trail.
type Session struct {
	ID        string        `json:"id" db:"id"`
	QRToken   string        `json:"qr_token" db:"qr_token"`
	Status    SessionStatus `json:"status" db:"status"`
	FlowType  FlowType      `json:"flow_type" db:"flow_type"`
	ExpiresAt time.Time     `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Biometric is one verified human: a device credential plus fingerprint
// hash, bound 1:1 to the session that registered it. Rows are immutable.
type Biometric struct {
	ID              string    `json:"id" db:"id"`
	CredentialID    string    `json:"credential_id" db:"credential_id"`
	PublicKey       string    `json:"public_key" db:"public_key"`
	FingerprintHash string    `json:"fingerprint_hash" db:"fingerprint_hash"`
	SessionID       string    `json:"session_id" db:"session_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Vote is one cast ballot, at most one per biometric. Append-only.
type Vote struct {
	ID          string    `json:"id" db:"id"`
	BiometricID string    `json:"biometric_id" db:"biometric_id"`
	VoteChoice  string    `json:"vote_choice" db:"vote_choice"`
	VotedAt     time.Time `json:"voted_at" db:"voted_at"`
}

type Admin struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ChoiceCount is one aggregate results row. Vote choice is never joined back
// to session or biometric records on this path.
type ChoiceCount struct {
	Choice string `json:"choice"`
	Count  int64  `json:"count"`
}
