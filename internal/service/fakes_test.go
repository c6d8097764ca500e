package service

import (
	"context"
	"sync"
	"time"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/model"
)

// Stateful in-memory fakes standing in for the pgx repositories. They
// enforce the same uniqueness rules the schema does, so the services can be
// exercised through full scenarios without a database.

type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]model.Session
	createErr error
	getErr    error
	updateErr error
	expireErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]model.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *fakeSessionRepo) MarkScanned(ctx context.Context, id string) (bool, error) {
	if r.updateErr != nil {
		return false, r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Status != model.SessionPending {
		return false, nil
	}
	session.Status = model.SessionScanned
	r.sessions[id] = session
	return true, nil
}

func (r *fakeSessionRepo) MarkExpired(ctx context.Context, id string) (bool, error) {
	if r.updateErr != nil {
		return false, r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Status.Terminal() {
		return false, nil
	}
	session.Status = model.SessionExpired
	r.sessions[id] = session
	return true, nil
}

func (r *fakeSessionRepo) ExpireBefore(ctx context.Context, deadline time.Time) ([]string, error) {
	if r.expireErr != nil {
		return nil, r.expireErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, session := range r.sessions {
		if !session.Status.Terminal() && session.ExpiresAt.Before(deadline) {
			session.Status = model.SessionExpired
			r.sessions[id] = session
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeSessionRepo) status(id string) model.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Status
}

type fakeBiometricRepo struct {
	mu         sync.Mutex
	biometrics map[string]model.Biometric
	createErr  error
}

func newFakeBiometricRepo() *fakeBiometricRepo {
	return &fakeBiometricRepo{biometrics: make(map[string]model.Biometric)}
}

func (r *fakeBiometricRepo) Create(ctx context.Context, biometric *model.Biometric) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Same rejection the schema's unique constraints produce.
	for _, existing := range r.biometrics {
		if existing.CredentialID == biometric.CredentialID ||
			existing.FingerprintHash == biometric.FingerprintHash ||
			existing.SessionID == biometric.SessionID {
			return apperrors.Conflict("biometric already registered")
		}
	}
	r.biometrics[biometric.ID] = *biometric
	return nil
}

func (r *fakeBiometricRepo) GetByID(ctx context.Context, id string) (*model.Biometric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	biometric, ok := r.biometrics[id]
	if !ok {
		return nil, nil
	}
	return &biometric, nil
}

func (r *fakeBiometricRepo) GetByCredentialID(ctx context.Context, credentialID string) (*model.Biometric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, biometric := range r.biometrics {
		if biometric.CredentialID == credentialID {
			b := biometric
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeBiometricRepo) GetByFingerprintHash(ctx context.Context, hash string) (*model.Biometric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, biometric := range r.biometrics {
		if biometric.FingerprintHash == hash {
			b := biometric
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeBiometricRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.Biometric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, biometric := range r.biometrics {
		if biometric.SessionID == sessionID {
			b := biometric
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeBiometricRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.biometrics)
}

// fakeVoteRepo emulates the cast transaction against the fake session store:
// the vote lands and the session completes together, or neither happens.
type fakeVoteRepo struct {
	mu       sync.Mutex
	votes    map[string]model.Vote // keyed by biometric id
	sessions *fakeSessionRepo
	// failCompletion simulates a storage failure on the session-completion
	// half of the transaction.
	failCompletion bool
	getErr         error
}

func newFakeVoteRepo(sessions *fakeSessionRepo) *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[string]model.Vote), sessions: sessions}
}

func (r *fakeVoteRepo) GetByBiometricID(ctx context.Context, biometricID string) (*model.Vote, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	vote, ok := r.votes[biometricID]
	if !ok {
		return nil, nil
	}
	return &vote, nil
}

func (r *fakeVoteRepo) CastVote(ctx context.Context, vote *model.Vote, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.mu.Lock()
	defer r.sessions.mu.Unlock()

	session, ok := r.sessions.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("session not found")
	}
	switch session.Status {
	case model.SessionCompleted:
		return apperrors.Conflict("session already completed")
	case model.SessionExpired:
		return apperrors.Gone("session has expired")
	}

	if _, exists := r.votes[vote.BiometricID]; exists {
		return apperrors.Conflict("vote already cast for this biometric")
	}

	if r.failCompletion {
		// Whole transaction rolls back: the vote insert must not stick.
		return apperrors.Internal("failed to complete session", nil)
	}

	r.votes[vote.BiometricID] = *vote
	session.Status = model.SessionCompleted
	r.sessions.sessions[sessionID] = session
	return nil
}

func (r *fakeVoteRepo) CountByChoice(ctx context.Context) ([]model.ChoiceCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, vote := range r.votes {
		counts[vote.VoteChoice]++
	}
	var results []model.ChoiceCount
	for choice, count := range counts {
		results = append(results, model.ChoiceCount{Choice: choice, Count: count})
	}
	return results, nil
}

func (r *fakeVoteRepo) CountTotal(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.votes)), nil
}

type fakeAdminRepo struct {
	mu     sync.Mutex
	admins map[string]model.Admin // keyed by email
	getErr error
}

func newFakeAdminRepo() *fakeAdminRepo {
	return &fakeAdminRepo{admins: make(map[string]model.Admin)}
}

func (r *fakeAdminRepo) Create(ctx context.Context, admin *model.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.admins[admin.Email]; exists {
		return apperrors.Conflict("admin already exists")
	}
	r.admins[admin.Email] = *admin
	return nil
}

func (r *fakeAdminRepo) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	admin, ok := r.admins[email]
	if !ok {
		return nil, nil
	}
	return &admin, nil
}

// recordingBus captures every published event for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []model.Event
}

func (b *recordingBus) Publish(ctx context.Context, event model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) countOf(eventType model.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, event := range b.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func (b *recordingBus) last() (model.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return model.Event{}, false
	}
	return b.events[len(b.events)-1], true
}
