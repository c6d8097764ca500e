package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"voting_api_gateway/internal/model"
	"voting_api_gateway/internal/notify"
	"voting_api_gateway/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Handler struct {
	sessions    service.SessionService
	biometrics  service.BiometricService
	votes       service.VoteService
	auth        service.AuthService
	bus         *notify.Bus
	validate    *validator.Validate
	frontendURL string
	logger      *zap.Logger
}

func NewHandler(
	sessions service.SessionService,
	biometrics service.BiometricService,
	votes service.VoteService,
	auth service.AuthService,
	bus *notify.Bus,
	frontendURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions:    sessions,
		biometrics:  biometrics,
		votes:       votes,
		auth:        auth,
		bus:         bus,
		validate:    validator.New(),
		frontendURL: frontendURL,
		logger:      logger,
	}
}

func (h *Handler) parseBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	QRToken   string    `json:"qrToken,omitempty"`
	VotingURL string    `json:"votingUrl,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	FlowType  string    `json:"flowType"`
}

// GenerateQRSession handles POST /api/session/generate/qr, for laptops
// without a fingerprint sensor. The frontend renders the returned URL as a
// QR code.
func (h *Handler) GenerateQRSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context(), model.FlowQR)
	if err != nil {
		writeAppError(w, err, "Failed to generate QR session")
		return
	}

	writeSuccess(w, http.StatusCreated, "QR session created", sessionResponse{
		SessionID: session.ID,
		QRToken:   session.QRToken,
		VotingURL: fmt.Sprintf("%s/vote/mobile?session=%s", h.frontendURL, session.ID),
		ExpiresAt: session.ExpiresAt,
		FlowType:  string(session.FlowType),
	})
}

// GenerateDirectSession handles POST /api/session/generate/direct, for
// laptops with a sensor.
func (h *Handler) GenerateDirectSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context(), model.FlowDirect)
	if err != nil {
		writeAppError(w, err, "Failed to create session")
		return
	}

	writeSuccess(w, http.StatusCreated, "Direct session created", sessionResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		FlowType:  string(session.FlowType),
	})
}

// GetSessionStatus handles GET /api/session/{sessionId}/status.
func (h *Handler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	session, err := h.sessions.GetValidSession(r.Context(), sessionID)
	if err != nil {
		writeAppError(w, err, "Failed to get session status")
		return
	}

	writeSuccess(w, http.StatusOK, "Session status retrieved", map[string]string{
		"status":   string(session.Status),
		"flowType": string(session.FlowType),
	})
}

// MarkScanned handles POST /api/session/{sessionId}/scan, called by the
// phone when it opens the QR link.
func (h *Handler) MarkScanned(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := h.sessions.MarkScanned(r.Context(), sessionID); err != nil {
		writeAppError(w, err, "Failed to update session")
		return
	}

	writeSuccess(w, http.StatusOK, "Session marked as scanned", nil)
}

type verifyBiometricRequest struct {
	SessionID       string `json:"sessionId" validate:"required"`
	CredentialID    string `json:"credentialId" validate:"required"`
	PublicKey       string `json:"publicKey" validate:"required"`
	FingerprintHash string `json:"fingerprintHash" validate:"required"`
}

// VerifyBiometric handles POST /api/biometric/verify, called when a device
// submits the fingerprint scan.
func (h *Handler) VerifyBiometric(w http.ResponseWriter, r *http.Request) {
	var req verifyBiometricRequest
	if err := h.parseBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required biometric fields")
		return
	}

	biometric, err := h.biometrics.VerifyAndRegister(r.Context(),
		req.SessionID, req.CredentialID, req.PublicKey, req.FingerprintHash)
	if err != nil {
		writeVotingError(w, err, "Biometric verification failed")
		return
	}

	writeSuccess(w, http.StatusCreated, "Fingerprint verified successfully", map[string]string{
		"biometricId": biometric.ID,
	})
}

type castVoteRequest struct {
	SessionID   string `json:"sessionId" validate:"required"`
	BiometricID string `json:"biometricId" validate:"required"`
	VoteChoice  string `json:"voteChoice" validate:"required"`
}

// CastVote handles POST /api/vote/cast.
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := h.parseBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required vote fields")
		return
	}

	vote, err := h.votes.CastVote(r.Context(), req.SessionID, req.BiometricID, req.VoteChoice)
	if err != nil {
		writeVotingError(w, err, "Failed to cast vote")
		return
	}

	writeSuccess(w, http.StatusCreated, "Vote cast successfully", map[string]interface{}{
		"voteId":  vote.ID,
		"votedAt": vote.VotedAt,
	})
}

// GetResults handles GET /api/vote/results (admin only). The store gives no
// ordering, so results are sorted here for display.
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.votes.GetResults(r.Context())
	if err != nil {
		writeAppError(w, err, "Failed to get results")
		return
	}

	total, err := h.votes.GetTotalVotes(r.Context())
	if err != nil {
		writeAppError(w, err, "Failed to get results")
		return
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Choice < results[j].Choice
	})

	writeSuccess(w, http.StatusOK, "Results retrieved", map[string]interface{}{
		"results": results,
		"total":   total,
	})
}

// GetVoteCount handles GET /api/vote/count (admin only).
func (h *Handler) GetVoteCount(w http.ResponseWriter, r *http.Request) {
	total, err := h.votes.GetTotalVotes(r.Context())
	if err != nil {
		writeAppError(w, err, "Failed to get vote count")
		return
	}

	writeSuccess(w, http.StatusOK, "Vote count retrieved", map[string]int64{"total": total})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.parseBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, expiresAt, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		writeAppError(w, err, "Login failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Logged in", map[string]interface{}{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", map[string]time.Time{"timestamp": time.Now()})
}
