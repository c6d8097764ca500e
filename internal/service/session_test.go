package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/model"

	"go.uber.org/zap/zaptest"
)

func newTestSessionService(t *testing.T, repo *fakeSessionRepo, bus *recordingBus) *sessionService {
	t.Helper()
	return &sessionService{
		repo:   repo,
		bus:    bus,
		ttl:    5 * time.Minute,
		now:    time.Now,
		logger: zaptest.NewLogger(t),
	}
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name        string
		flow        model.FlowType
		createErr   error
		expectError bool
	}{
		{
			name: "qr_flow",
			flow: model.FlowQR,
		},
		{
			name: "direct_flow",
			flow: model.FlowDirect,
		},
		{
			name:        "unknown_flow",
			flow:        model.FlowType("carrier-pigeon"),
			expectError: true,
		},
		{
			name:        "storage_failure",
			flow:        model.FlowQR,
			createErr:   errors.New("connection refused"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSessionRepo()
			repo.createErr = tt.createErr
			svc := newTestSessionService(t, repo, &recordingBus{})

			session, err := svc.CreateSession(context.Background(), tt.flow)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if session.Status != model.SessionPending {
				t.Errorf("expected status pending, but got %s", session.Status)
			}
			if session.FlowType != tt.flow {
				t.Errorf("expected flow %s, but got %s", tt.flow, session.FlowType)
			}
			if session.ID == "" || session.QRToken == "" {
				t.Error("expected id and qr token to be generated")
			}
			if session.ID == session.QRToken {
				t.Error("id and qr token must be independent")
			}
			if !session.ExpiresAt.Equal(session.CreatedAt.Add(5 * time.Minute)) {
				t.Errorf("expected expiry 5m after creation, got %s", session.ExpiresAt.Sub(session.CreatedAt))
			}
		})
	}
}

func TestGetValidSession(t *testing.T) {
	tests := []struct {
		name         string
		status       model.SessionStatus
		expectedKind apperrors.Kind
		valid        bool
	}{
		{
			name:   "pending_session",
			status: model.SessionPending,
			valid:  true,
		},
		{
			name:   "scanned_session",
			status: model.SessionScanned,
			valid:  true,
		},
		{
			name:         "completed_session",
			status:       model.SessionCompleted,
			expectedKind: apperrors.KindConflict,
		},
		{
			name:         "expired_session",
			status:       model.SessionExpired,
			expectedKind: apperrors.KindGone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSessionRepo()
			repo.sessions["s1"] = model.Session{
				ID:        "s1",
				Status:    tt.status,
				FlowType:  model.FlowQR,
				ExpiresAt: time.Now().Add(time.Minute),
			}
			svc := newTestSessionService(t, repo, &recordingBus{})

			session, err := svc.GetValidSession(context.Background(), "s1")

			if tt.valid {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if session.Status != tt.status {
					t.Errorf("expected status %s, but got %s", tt.status, session.Status)
				}
				return
			}

			if err == nil {
				t.Fatal("expected error, but got nil")
			}
			if kind := apperrors.KindOf(err); kind != tt.expectedKind {
				t.Errorf("expected kind %s, but got %s", tt.expectedKind, kind)
			}
		})
	}
}

func TestGetValidSessionNotFound(t *testing.T) {
	svc := newTestSessionService(t, newFakeSessionRepo(), &recordingBus{})

	_, err := svc.GetValidSession(context.Background(), "missing")
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("expected NotFound, but got %v", err)
	}
}

// Scenario: a QR session with a 300s TTL reads as pending immediately, and
// as gone once the clock passes the deadline. The stored status flips to
// expired by the lazy check alone, no sweep involved.
func TestLazyExpiryAtReadTime(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := newTestSessionService(t, repo, &recordingBus{})

	start := time.Now()
	svc.ttl = 300 * time.Second
	svc.now = func() time.Time { return start }

	session, err := svc.CreateSession(context.Background(), model.FlowQR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetValidSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.SessionPending {
		t.Errorf("expected status pending, but got %s", got.Status)
	}

	svc.now = func() time.Time { return start.Add(301 * time.Second) }

	_, err = svc.GetValidSession(context.Background(), session.ID)
	if !apperrors.IsKind(err, apperrors.KindGone) {
		t.Fatalf("expected Gone after expiry, but got %v", err)
	}

	if status := repo.status(session.ID); status != model.SessionExpired {
		t.Errorf("expected stored status expired, but got %s", status)
	}
}

func TestMarkScannedIdempotent(t *testing.T) {
	repo := newFakeSessionRepo()
	bus := &recordingBus{}
	svc := newTestSessionService(t, repo, bus)

	session, err := svc.CreateSession(context.Background(), model.FlowQR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.MarkScanned(context.Background(), session.ID); err != nil {
		t.Fatalf("unexpected error on first scan: %v", err)
	}
	if status := repo.status(session.ID); status != model.SessionScanned {
		t.Errorf("expected status scanned, but got %s", status)
	}

	// Second scan: no error, no state change, no second notification.
	if err := svc.MarkScanned(context.Background(), session.ID); err != nil {
		t.Fatalf("unexpected error on second scan: %v", err)
	}
	if n := bus.countOf(model.EventSessionScanned); n != 1 {
		t.Errorf("expected exactly 1 scanned event, but got %d", n)
	}
}

// completedRaceRepo commits a vote transaction on the session right after the
// first read, landing in the window between the service's read and its
// follow-up status write.
type completedRaceRepo struct {
	*fakeSessionRepo
	sessionID string
	once      sync.Once
}

func (r *completedRaceRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	session, err := r.fakeSessionRepo.GetByID(ctx, id)
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		s := r.sessions[r.sessionID]
		s.Status = model.SessionCompleted
		r.sessions[r.sessionID] = s
	})
	return session, err
}

func TestLazyExpiryKeepsCompletedSession(t *testing.T) {
	base := newFakeSessionRepo()
	base.sessions["s1"] = model.Session{
		ID:        "s1",
		Status:    model.SessionPending,
		ExpiresAt: time.Now().Add(-time.Second),
	}
	repo := &completedRaceRepo{fakeSessionRepo: base, sessionID: "s1"}
	svc := &sessionService{
		repo:   repo,
		bus:    &recordingBus{},
		ttl:    5 * time.Minute,
		now:    time.Now,
		logger: zaptest.NewLogger(t),
	}

	_, err := svc.GetValidSession(context.Background(), "s1")
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected Conflict after losing to a committed vote, but got %v", err)
	}

	// The committed terminal state must survive the expiry attempt.
	if status := base.status("s1"); status != model.SessionCompleted {
		t.Errorf("expected session to stay completed, but got %s", status)
	}
}

func TestMarkScannedKeepsCompletedSession(t *testing.T) {
	base := newFakeSessionRepo()
	base.sessions["s1"] = model.Session{
		ID:        "s1",
		Status:    model.SessionPending,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	repo := &completedRaceRepo{fakeSessionRepo: base, sessionID: "s1"}
	bus := &recordingBus{}
	svc := &sessionService{
		repo:   repo,
		bus:    bus,
		ttl:    5 * time.Minute,
		now:    time.Now,
		logger: zaptest.NewLogger(t),
	}

	err := svc.MarkScanned(context.Background(), "s1")
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected Conflict after losing to a committed vote, but got %v", err)
	}

	if status := base.status("s1"); status != model.SessionCompleted {
		t.Errorf("expected session to stay completed, but got %s", status)
	}
	if n := bus.countOf(model.EventSessionScanned); n != 0 {
		t.Errorf("expected no scanned events, but got %d", n)
	}
}

func TestConcurrentScansPublishOnce(t *testing.T) {
	repo := newFakeSessionRepo()
	bus := &recordingBus{}
	svc := newTestSessionService(t, repo, bus)

	session, err := svc.CreateSession(context.Background(), model.FlowQR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.MarkScanned(context.Background(), session.ID)
		}()
	}
	wg.Wait()
	close(results)

	// Every scan succeeds, but only the one that won the guarded write
	// publishes.
	for err := range results {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if n := bus.countOf(model.EventSessionScanned); n != 1 {
		t.Errorf("expected exactly 1 scanned event, but got %d", n)
	}
	if status := repo.status(session.ID); status != model.SessionScanned {
		t.Errorf("expected status scanned, but got %s", status)
	}
}

func TestMarkScannedOnDeadSession(t *testing.T) {
	tests := []struct {
		name         string
		status       model.SessionStatus
		expectedKind apperrors.Kind
	}{
		{
			name:         "completed",
			status:       model.SessionCompleted,
			expectedKind: apperrors.KindConflict,
		},
		{
			name:         "expired",
			status:       model.SessionExpired,
			expectedKind: apperrors.KindGone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSessionRepo()
			repo.sessions["s1"] = model.Session{
				ID:        "s1",
				Status:    tt.status,
				ExpiresAt: time.Now().Add(time.Minute),
			}
			bus := &recordingBus{}
			svc := newTestSessionService(t, repo, bus)

			err := svc.MarkScanned(context.Background(), "s1")
			if kind := apperrors.KindOf(err); kind != tt.expectedKind {
				t.Errorf("expected kind %s, but got %v", tt.expectedKind, err)
			}
			if len(bus.events) != 0 {
				t.Errorf("expected no events, but got %d", len(bus.events))
			}
		})
	}
}

func TestExpireOldSessions(t *testing.T) {
	repo := newFakeSessionRepo()
	now := time.Now()
	repo.sessions["stale-pending"] = model.Session{
		ID: "stale-pending", Status: model.SessionPending, ExpiresAt: now.Add(-time.Minute),
	}
	repo.sessions["stale-scanned"] = model.Session{
		ID: "stale-scanned", Status: model.SessionScanned, ExpiresAt: now.Add(-time.Minute),
	}
	repo.sessions["fresh"] = model.Session{
		ID: "fresh", Status: model.SessionPending, ExpiresAt: now.Add(time.Minute),
	}
	repo.sessions["done"] = model.Session{
		ID: "done", Status: model.SessionCompleted, ExpiresAt: now.Add(-time.Minute),
	}

	bus := &recordingBus{}
	svc := newTestSessionService(t, repo, bus)

	count, err := svc.ExpireOldSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Both pending and scanned sessions past the deadline are swept.
	if count != 2 {
		t.Errorf("expected 2 expired sessions, but got %d", count)
	}
	if status := repo.status("stale-scanned"); status != model.SessionExpired {
		t.Errorf("expected stale scanned session expired, but got %s", status)
	}
	if status := repo.status("fresh"); status != model.SessionPending {
		t.Errorf("expected fresh session untouched, but got %s", status)
	}
	if status := repo.status("done"); status != model.SessionCompleted {
		t.Errorf("expected completed session untouched, but got %s", status)
	}
	if n := bus.countOf(model.EventSessionExpired); n != 2 {
		t.Errorf("expected 2 expired events, but got %d", n)
	}

	// Sweep and lazy expiry are idempotent against each other.
	count, err = svc.ExpireOldSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected second sweep to expire nothing, but got %d", count)
	}
}
