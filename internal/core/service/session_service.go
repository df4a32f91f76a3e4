package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/logging"
	"github.com/rl1809/stock-transfer/internal/metrics"
	"github.com/rl1809/stock-transfer/internal/port"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one user's transfer composition: the cart, the staging selection
// and the serials available for the staged item.
type Session struct {
	ID string

	mu               sync.Mutex
	cart             *domain.Cart
	staging          domain.StagingSelection
	availableSerials []string
	guard            *SubmitGuard

	// lastSeen is the unix-nano time of the last lookup
	lastSeen atomic.Int64
}

func newSession(id string, cart *domain.Cart) *Session {
	s := &Session{
		ID:      id,
		cart:    cart,
		staging: domain.NewStagingSelection(),
	}
	s.guard = NewSubmitGuard(&s.mu)
	return s
}

// SessionView is a point-in-time copy of a session.
type SessionView struct {
	ID                  string
	DestinationClinicID string
	Notes               string
	Lines               []domain.CartLine
	Staging             domain.StagingSelection
	AvailableSerials    []string
	Summary             domain.CartSummary
	State               SubmitState
	Revision            int64
}

func (s *Session) view() SessionView {
	staging := s.staging
	staging.Serials = slices.Clone(s.staging.Serials)
	return SessionView{
		ID:                  s.ID,
		DestinationClinicID: s.cart.DestinationClinicID,
		Notes:               s.cart.Notes,
		Lines:               s.cart.Lines(),
		Staging:             staging,
		AvailableSerials:    slices.Clone(s.availableSerials),
		Summary:             s.cart.Summary(),
		State:               s.guard.State(),
		Revision:            s.cart.Revision(),
	}
}

type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	refs      ReferenceSource
	builder   *CartBuilder
	transfers *TransferService
	backend   port.ClinicBackend
	cache     port.CacheRepository
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSessionService wires session handling. cache is optional; without it
// sessions live only in memory.
func NewSessionService(
	refs ReferenceSource,
	transfers *TransferService,
	backend port.ClinicBackend,
	cache port.CacheRepository,
	logger *zap.Logger,
	m *metrics.Metrics,
) *SessionService {
	return &SessionService{
		sessions:  make(map[string]*Session),
		refs:      refs,
		builder:   NewCartBuilder(refs),
		transfers: transfers,
		backend:   backend,
		cache:     cache,
		logger:    logging.OrNop(logger),
		metrics:   m,
		now:       time.Now,
	}
}

func (s *SessionService) Open(ctx context.Context) SessionView {
	sess := newSession(uuid.NewString(), domain.NewCart())
	sess.lastSeen.Store(s.now().UnixNano())

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.metrics.SessionOpened()

	s.logger.Debug("session opened", zap.String("session_id", sess.ID))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view()
}

func (s *SessionService) View(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// Abandon drops the session and its draft.
func (s *SessionService) Abandon(ctx context.Context, id string) error {
	sess, err := s.session(ctx, id)
	if err != nil {
		return err
	}
	if sess.guard.State() == SubmitSubmitting {
		return ErrSubmissionInFlight
	}

	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		s.metrics.SessionClosed()
	}
	s.mu.Unlock()

	s.deleteDraft(ctx, id)
	return nil
}

func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionService) SetDestination(ctx context.Context, id, clinicID string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.cart.SetDestination(clinicID)
		return nil
	})
}

func (s *SessionService) SetNotes(ctx context.Context, id, notes string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.cart.SetNotes(notes)
		return nil
	})
}

// SelectItem stages an item. For serialized items the available serial list
// is fetched; a failed fetch leaves the list empty and is returned after the
// selection has been applied.
func (s *SessionService) SelectItem(ctx context.Context, id string, itemID int) (SessionView, error) {
	view, err := s.mutate(ctx, id, func(sess *Session) error {
		sess.staging.Select(itemID)
		sess.availableSerials = nil
		return nil
	})
	if err != nil {
		return view, err
	}

	item, ok := s.refs.Current().Item(itemID)
	if !ok || !item.IsSerialized() {
		return view, nil
	}

	serials, fetchErr := s.backend.ListAvailableSerials(ctx, itemID)
	if fetchErr != nil {
		s.logger.Warn("failed to fetch available serials",
			zap.String("session_id", id),
			zap.Int("item_id", itemID),
			zap.Error(fetchErr),
		)
	}

	sess, err := s.session(ctx, id)
	if err != nil {
		return view, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if fetchErr == nil && sess.staging.ItemID == itemID {
		sess.availableSerials = serials
	}
	view = sess.view()
	if fetchErr != nil {
		return view, fmt.Errorf("fetch serials for item %d: %w", itemID, fetchErr)
	}
	return view, nil
}

func (s *SessionService) SetStagingQuantity(ctx context.Context, id string, quantity int) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.staging.Quantity = quantity
		return nil
	})
}

// AddTempSerial stages the typed serial input.
func (s *SessionService) AddTempSerial(ctx context.Context, id, input string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.staging.SerialInput = input
		return sess.staging.AddTempSerial()
	})
}

func (s *SessionService) RemoveTempSerial(ctx context.Context, id, serial string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.staging.RemoveTempSerial(serial)
		return nil
	})
}

func (s *SessionService) ToggleAvailableSerial(ctx context.Context, id, serial string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.staging.ToggleAvailableSerial(serial)
		return nil
	})
}

// AddLine commits the staging selection to the cart.
func (s *SessionService) AddLine(ctx context.Context, id string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if _, err := s.builder.AddLine(sess.cart, &sess.staging); err != nil {
			return err
		}
		sess.availableSerials = nil
		return nil
	})
}

func (s *SessionService) RemoveLine(ctx context.Context, id string, itemID int) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.cart.RemoveLine(itemID)
		return nil
	})
}

func (s *SessionService) AdjustQuantity(ctx context.Context, id string, itemID, delta int) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.cart.AdjustQuantity(itemID, delta)
	})
}

func (s *SessionService) SetQuantity(ctx context.Context, id string, itemID, value int) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.cart.SetQuantity(itemID, value)
	})
}

func (s *SessionService) ToggleSerial(ctx context.Context, id string, itemID int, serial string) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.cart.ToggleSerial(itemID, serial)
	})
}

// Submit sends the session's cart. On success the cart is empty and the
// draft is gone; on failure both are untouched.
func (s *SessionService) Submit(ctx context.Context, id string) (*domain.Confirmation, SessionView, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, SessionView{}, err
	}

	conf, submitErr := s.transfers.Submit(ctx, sess.ID, sess.guard, sess.cart)

	sess.mu.Lock()
	view := sess.view()
	sess.mu.Unlock()

	if submitErr != nil {
		return nil, view, submitErr
	}
	s.deleteDraft(context.WithoutCancel(ctx), id)
	return conf, view, nil
}

// mutate applies fn under the session lock unless a submission is in flight,
// then saves a draft when the cart changed.
func (s *SessionService) mutate(ctx context.Context, id string, fn func(*Session) error) (SessionView, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return SessionView{}, err
	}

	sess.mu.Lock()
	if sess.guard.State() == SubmitSubmitting {
		view := sess.view()
		sess.mu.Unlock()
		return view, ErrSubmissionInFlight
	}
	before := sess.cart.Revision()
	err = fn(sess)
	view := sess.view()
	var draft *domain.Draft
	if sess.cart.Revision() != before {
		d := sess.cart.Draft(sess.ID, s.now())
		draft = &d
	}
	sess.mu.Unlock()

	if draft != nil {
		s.saveDraft(ctx, *draft)
	}
	if err != nil {
		s.logger.Debug("cart action rejected", zap.String("session_id", id), zap.Error(err))
	}
	return view, err
}

// session finds a live session, falling back to a saved draft.
func (s *SessionService) session(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.lastSeen.Store(s.now().UnixNano())
		return sess, nil
	}
	if s.cache == nil {
		return nil, ErrSessionNotFound
	}

	draft, err := s.cache.LoadDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if draft == nil {
		return nil, ErrSessionNotFound
	}

	refs := s.refs.Current()
	cart, dropped := domain.RestoreCart(*draft, refs.Item)
	if dropped > 0 {
		s.logger.Warn("dropped stale lines from draft", zap.String("session_id", id), zap.Int("dropped", dropped))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		existing.lastSeen.Store(s.now().UnixNano())
		return existing, nil
	}
	sess = newSession(id, cart)
	sess.lastSeen.Store(s.now().UnixNano())
	s.sessions[id] = sess
	s.metrics.SessionOpened()
	s.logger.Info("session resumed from draft", zap.String("session_id", id), zap.Int("lines", cart.Len()))
	return sess, nil
}

// EvictIdle drops in-memory sessions not looked up for longer than maxIdle.
// Sessions with a submission in flight are kept. An evicted session can still
// be resumed from its draft while the draft lives.
func (s *SessionService) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() >= cutoff || sess.guard.State() == SubmitSubmitting {
			continue
		}
		delete(s.sessions, id)
		s.metrics.SessionClosed()
		evicted++
	}
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", zap.Int("evicted", evicted), zap.Int("remaining", len(s.sessions)))
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *SessionService) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(maxIdle)
		}
	}
}

func (s *SessionService) saveDraft(ctx context.Context, draft domain.Draft) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveDraft(ctx, draft); err != nil {
		s.logger.Warn("failed to save draft", zap.String("session_id", draft.SessionID), zap.Error(err))
	}
}

func (s *SessionService) deleteDraft(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteDraft(ctx, id); err != nil {
		s.logger.Warn("failed to delete draft", zap.String("session_id", id), zap.Error(err))
	}
}
