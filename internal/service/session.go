package service

import (
	"context"
	"fmt"
	"time"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/model"
	"voting_api_gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher is the slice of the notification bus the services need.
// Publishing is best-effort and never fails the triggering operation.
type EventPublisher interface {
	Publish(ctx context.Context, event model.Event)
}

type SessionService interface {
	CreateSession(ctx context.Context, flow model.FlowType) (*model.Session, error)
	// GetValidSession is the single validation authority for sessions. It
	// expires a stale session lazily at read time, so expiry holds even if
	// the sweep has not run.
	GetValidSession(ctx context.Context, sessionID string) (*model.Session, error)
	// MarkScanned transitions a validated session to scanned. A second scan
	// is a no-op: first scan wins, and only the first publishes an event.
	MarkScanned(ctx context.Context, sessionID string) error
	// ExpireOldSessions is the advisory periodic sweep. It flips both
	// pending and scanned sessions past their deadline and reports how many.
	ExpireOldSessions(ctx context.Context) (int, error)
}

type sessionService struct {
	repo   repository.SessionRepository
	bus    EventPublisher
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewSessionService(repo repository.SessionRepository, bus EventPublisher, ttl time.Duration, logger *zap.Logger) SessionService {
	return &sessionService{
		repo:   repo,
		bus:    bus,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (s *sessionService) CreateSession(ctx context.Context, flow model.FlowType) (*model.Session, error) {
	if flow != model.FlowQR && flow != model.FlowDirect {
		return nil, fmt.Errorf("unknown flow type %q", flow)
	}

	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		QRToken:   uuid.New().String(),
		Status:    model.SessionPending,
		FlowType:  flow,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		s.logger.Error("failed to create session", zap.Error(err))
		return nil, apperrors.Internal("failed to create session", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID), zap.String("flow", string(flow)))
	return session, nil
}

func (s *sessionService) GetValidSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to load session", zap.Error(err), zap.String("session_id", sessionID))
		return nil, apperrors.Internal("failed to load session", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("session not found")
	}

	if !session.Status.Terminal() && s.now().After(session.ExpiresAt) {
		// Lazy expiry. The write is guarded on the session still being live,
		// so a vote transaction that committed after our read keeps its
		// terminal state; re-read and report what the session became.
		changed, err := s.repo.MarkExpired(ctx, sessionID)
		if err != nil {
			s.logger.Warn("failed to persist lazy expiry", zap.Error(err),
				zap.String("session_id", sessionID))
		}
		if err == nil && !changed {
			if current, err := s.repo.GetByID(ctx, sessionID); err == nil &&
				current != nil && current.Status == model.SessionCompleted {
				return nil, apperrors.Conflict("this session has already been completed")
			}
		}
		return nil, apperrors.Gone("session has expired, please refresh and try again")
	}

	switch session.Status {
	case model.SessionCompleted:
		return nil, apperrors.Conflict("this session has already been completed")
	case model.SessionExpired:
		return nil, apperrors.Gone("this session has expired")
	}

	return session, nil
}

func (s *sessionService) MarkScanned(ctx context.Context, sessionID string) error {
	session, err := s.GetValidSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.Status == model.SessionScanned {
		s.logger.Debug("session already scanned", zap.String("session_id", sessionID))
		return nil
	}

	changed, err := s.repo.MarkScanned(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to mark session scanned", zap.Error(err),
			zap.String("session_id", sessionID))
		return apperrors.Internal("failed to mark session scanned", err)
	}
	if !changed {
		// The write is guarded on pending, so someone beat us past that
		// state. Re-read and report the state the session is actually in;
		// only the winning scan publishes.
		current, err := s.repo.GetByID(ctx, sessionID)
		if err != nil {
			return apperrors.Internal("failed to load session", err)
		}
		switch {
		case current == nil:
			return apperrors.NotFound("session not found")
		case current.Status == model.SessionScanned:
			return nil
		case current.Status == model.SessionCompleted:
			return apperrors.Conflict("this session has already been completed")
		default:
			return apperrors.Gone("this session has expired")
		}
	}

	s.bus.Publish(ctx, model.Event{SessionID: sessionID, Type: model.EventSessionScanned})

	s.logger.Info("session marked as scanned", zap.String("session_id", sessionID))
	return nil
}

func (s *sessionService) ExpireOldSessions(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to expire old sessions", zap.Error(err))
		return 0, apperrors.Internal("failed to expire old sessions", err)
	}

	for _, id := range ids {
		s.bus.Publish(ctx, model.Event{SessionID: id, Type: model.EventSessionExpired})
	}

	if len(ids) > 0 {
		s.logger.Info("expired old sessions", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}
