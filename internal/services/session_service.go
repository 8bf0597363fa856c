package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

const (
	sessionKey   = "user_session"
	authLogIDKey = "auth_log_id"

	SessionLifetime = 365 * 24 * time.Hour
)

// SessionService is the single source of truth for who is logged in on this
// device. It bridges the in-memory session, the local cache and the server
// side auth log.
type SessionService struct {
	mu      sync.RWMutex
	current *models.UserSession

	store   KeyValueStore
	backend SessionBackend
	now     func() time.Time
}

func NewSessionService(store KeyValueStore, backend SessionBackend) *SessionService {
	return &SessionService{
		store:   store,
		backend: backend,
		now:     time.Now,
	}
}

// CreateSession records a new server session for an authenticated user and
// caches it locally. Nothing is cached when the server insert fails.
func (s *SessionService) CreateSession(ctx context.Context, user models.User) (*models.UserSession, error) {
	rec := &models.AuthLog{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		ExpiresAt:   s.now().Add(SessionLifetime),
	}
	if err := s.backend.InsertAuthLog(ctx, rec); err != nil {
		log.Printf("SessionService.CreateSession - insert auth log for %s: %v", user.ID, err)
		return nil, fmt.Errorf("create session: %w", err)
	}

	session := &models.UserSession{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		FullName:    user.FullName,
		UserType:    user.UserType,
		IsApproved:  user.IsApproved,
		AuthLogID:   rec.ID,
	}
	if err := s.persist(ctx, session); err != nil {
		return nil, err
	}
	s.setCurrent(session)
	return session, nil
}

// GetSession returns the in-memory session when there is one. Otherwise it
// restores the cached session and checks it against the server; anything
// short of a confirmed valid record clears local state and yields ErrNoSession.
func (s *SessionService) GetSession(ctx context.Context) (*models.UserSession, error) {
	if cur := s.CurrentUser(); cur != nil {
		return cur, nil
	}
	return s.Revalidate(ctx)
}

// Revalidate ignores the in-memory session and checks the cached one against
// the server.
func (s *SessionService) Revalidate(ctx context.Context) (*models.UserSession, error) {
	raw, ok, err := s.store.GetItem(ctx, sessionKey)
	if err != nil {
		log.Printf("SessionService.Revalidate - read cache: %v", err)
		s.clearLocal(ctx)
		return nil, ErrNoSession
	}
	if !ok {
		s.setCurrent(nil)
		return nil, ErrNoSession
	}

	var cached models.UserSession
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		log.Printf("SessionService.Revalidate - undecodable cached session: %v", err)
		s.clearLocal(ctx)
		return nil, ErrNoSession
	}
	if err := models.Validate(&cached); err != nil {
		log.Printf("SessionService.Revalidate - %v", err)
		s.clearLocal(ctx)
		return nil, ErrNoSession
	}

	rec, err := s.backend.GetAuthLog(ctx, cached.AuthLogID)
	if err != nil {
		log.Printf("SessionService.Revalidate - auth log %s: %v", cached.AuthLogID, err)
		s.clearLocal(ctx)
		return nil, ErrNoSession
	}
	if !rec.Valid(s.now()) || rec.UserID != cached.UserID {
		log.Printf("SessionService.Revalidate - auth log %s is used or expired", rec.ID)
		s.clearLocal(ctx)
		return nil, ErrNoSession
	}

	user, err := s.backend.GetUser(ctx, cached.UserID)
	if err != nil {
		log.Printf("SessionService.Revalidate - user %s: %v", cached.UserID, err)
		s.clearLocal(ctx)
		return nil, ErrNoSession
	}
	cached.FullName = user.FullName
	cached.IsApproved = user.IsApproved
	cached.UserType = user.UserType

	if err := s.persist(ctx, &cached); err != nil {
		log.Printf("SessionService.Revalidate - rewrite cache: %v", err)
	}
	s.setCurrent(&cached)
	return &cached, nil
}

// RefreshSession pushes the server-side expiry a full lifetime from now.
func (s *SessionService) RefreshSession(ctx context.Context) error {
	session, err := s.GetSession(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.ExtendAuthLog(ctx, session.AuthLogID, s.now().Add(SessionLifetime)); err != nil {
		log.Printf("SessionService.RefreshSession - %s: %v", session.AuthLogID, err)
		return fmt.Errorf("refresh session: %w", err)
	}
	return nil
}

// Logout marks the server record used and clears all local state. The local
// clear happens even when the server call fails.
func (s *SessionService) Logout(ctx context.Context) {
	id := s.authLogID(ctx)
	if id != uuid.Nil {
		if err := s.backend.MarkAuthLogUsed(ctx, id); err != nil {
			log.Printf("SessionService.Logout - mark auth log %s used: %v", id, err)
		}
	}
	s.clearLocal(ctx)
}

// ClearSession is Logout under the name the screens use after detecting an
// invalid session.
func (s *SessionService) ClearSession(ctx context.Context) { s.Logout(ctx) }

// IsLoggedIn is true only for a valid session of an approved account.
func (s *SessionService) IsLoggedIn(ctx context.Context) bool {
	session, err := s.GetSession(ctx)
	return err == nil && session.IsApproved
}

// CurrentUser returns the in-memory session without any I/O.
func (s *SessionService) CurrentUser() *models.UserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

func (s *SessionService) RequireActive(ctx context.Context) (*models.UserSession, error) {
	session, err := s.GetSession(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	if !session.IsApproved {
		return nil, ErrNotApproved
	}
	return session, nil
}

func (s *SessionService) authLogID(ctx context.Context) uuid.UUID {
	if cur := s.CurrentUser(); cur != nil {
		return cur.AuthLogID
	}
	raw, ok, err := s.store.GetItem(ctx, authLogIDKey)
	if err != nil || !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (s *SessionService) persist(ctx context.Context, session *models.UserSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.store.SetItem(ctx, sessionKey, string(raw)); err != nil {
		return fmt.Errorf("cache session: %w", err)
	}
	if err := s.store.SetItem(ctx, authLogIDKey, session.AuthLogID.String()); err != nil {
		return fmt.Errorf("cache auth log id: %w", err)
	}
	return nil
}

func (s *SessionService) clearLocal(ctx context.Context) {
	s.setCurrent(nil)
	// Clearing must not depend on the caller's context still being live.
	ctx = context.WithoutCancel(ctx)
	for _, key := range []string{sessionKey, authLogIDKey} {
		if err := s.store.RemoveItem(ctx, key); err != nil {
			log.Printf("SessionService.clearLocal - remove %s: %v", key, err)
		}
	}
}

func (s *SessionService) setCurrent(session *models.UserSession) {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()
}
