package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

var (
	ErrSubmissionInFlight  = errors.New("transfer submission already in flight")
	ErrDuplicateSubmission = errors.New("transfer already submitted")
)

type SubmitState int32

const (
	SubmitIdle SubmitState = iota
	SubmitSubmitting
)

func (s SubmitState) String() string {
	switch s {
	case SubmitIdle:
		return "idle"
	case SubmitSubmitting:
		return "submitting"
	}
	return "unknown"
}

// SubmitGuard is the Idle/Submitting state machine for one cart. mu, when
// set, is the lock that guards the cart; Begin takes it so that no writer is
// mid-mutation when the state flips.
type SubmitGuard struct {
	mu    sync.Locker
	state atomic.Int32
}

func NewSubmitGuard(mu sync.Locker) *SubmitGuard {
	return &SubmitGuard{mu: mu}
}

func (g *SubmitGuard) State() SubmitState {
	return SubmitState(g.state.Load())
}

// Begin moves Idle to Submitting. It returns false when a submission is
// already in flight.
func (g *SubmitGuard) Begin() bool {
	g.lock()
	defer g.unlock()
	return g.state.CompareAndSwap(int32(SubmitIdle), int32(SubmitSubmitting))
}

// Settle moves Submitting back to Idle.
func (g *SubmitGuard) Settle() {
	g.state.Store(int32(SubmitIdle))
}

func (g *SubmitGuard) lock() {
	if g.mu != nil {
		g.mu.Lock()
	}
}

func (g *SubmitGuard) unlock() {
	if g.mu != nil {
		g.mu.Unlock()
	}
}

// MaxHistoryLimit caps how many transfers History returns.
const MaxHistoryLimit = 100

const (
	defaultSubmitTimeout = 30 * time.Second
	bookkeepingTimeout   = 5 * time.Second
)

type TransferService struct {
	backend port.ClinicBackend
	refs    ReferenceSource
	cache   port.CacheRepository
	history port.DatabaseRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	submitTimeout time.Duration
}

// NewTransferService wires the submitter. cache and history are optional.
func NewTransferService(
	backend port.ClinicBackend,
	refs ReferenceSource,
	cache port.CacheRepository,
	history port.DatabaseRepository,
	logger *zap.Logger,
	m *metrics.Metrics,
) *TransferService {
	return &TransferService{
		backend: backend,
		refs:    refs,
		cache:   cache,
		history: history,
		logger:  logging.OrNop(logger),
		metrics: m,
		now:     time.Now,

		submitTimeout: defaultSubmitTimeout,
	}
}

// SetSubmitTimeout bounds the idempotency check and the backend POST of one
// submission. Non-positive values are ignored.
func (s *TransferService) SetSubmitTimeout(d time.Duration) {
	if d > 0 {
		s.submitTimeout = d
	}
}

// BuildRequest checks the cart and converts it to the wire payload. It
// performs no I/O.
func (s *TransferService) BuildRequest(cart *domain.Cart) (domain.TransferRequest, error) {
	if cart.DestinationClinicID == "" {
		return domain.TransferRequest{}, domain.ErrNoDestination
	}
	clinicID, err := strconv.Atoi(cart.DestinationClinicID)
	if err != nil {
		return domain.TransferRequest{}, domain.ErrUnknownDestination
	}
	if _, ok := s.refs.Current().Destination(clinicID); !ok {
		return domain.TransferRequest{}, domain.ErrUnknownDestination
	}

	lines := cart.Lines()
	if len(lines) == 0 {
		return domain.TransferRequest{}, domain.ErrEmptyCart
	}

	req := domain.TransferRequest{
		ToClinicID: clinicID,
		Notes:      cart.Notes,
		Products:   make([]domain.TransferProduct, 0, len(lines)),
	}
	for _, line := range lines {
		if sl, ok := line.(domain.SerializedLine); ok && len(sl.Serials) == 0 {
			return domain.TransferRequest{}, fmt.Errorf("item %d: %w", sl.Item.ID, domain.ErrEmptySerialLine)
		}
		req.Products = append(req.Products, domain.NewTransferProduct(line))
	}
	return req, nil
}

// Submit sends the cart as one transfer. At most one Submit per guard runs at
// a time; a concurrent call fails with ErrSubmissionInFlight and sends
// nothing. The cart is reset only after the backend confirms; on any error it
// is left as it was. Once started, a submission is not cancelled by ctx;
// only the submit timeout bounds it.
func (s *TransferService) Submit(ctx context.Context, sessionID string, guard *SubmitGuard, cart *domain.Cart) (*domain.Confirmation, error) {
	if !guard.Begin() {
		s.metrics.Submission("in_flight")
		return nil, ErrSubmissionInFlight
	}
	defer guard.Settle()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()

	guard.lock()
	req, err := s.BuildRequest(cart)
	revision := cart.Revision()
	guard.unlock()
	if err != nil {
		s.metrics.Submission("validation")
		return nil, err
	}

	key := idempotencyKey(sessionID, revision)
	if s.cache != nil {
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			s.metrics.Submission("backend")
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			s.metrics.Submission("duplicate")
			return nil, ErrDuplicateSubmission
		}
	}

	log := s.logger.With(zap.String("session_id", sessionID), zap.String("idempotency_key", key))

	start := s.now()
	conf, err := s.backend.CreateTransfer(ctx, req, key)
	s.metrics.ObserveSubmit(s.now().Sub(start).Seconds())
	if err != nil {
		s.releaseKey(ctx, log, key)
		s.metrics.Submission("backend")
		log.Error("transfer submission failed", zap.Int("to_clinic_id", req.ToClinicID), zap.Error(err))
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	if conf == nil {
		conf = &domain.Confirmation{}
	}
	if conf.Message == "" {
		conf.Message = DefaultSuccessMessage
	}
	conf.IdempotencyKey = key
	conf.SubmittedAt = start

	guard.lock()
	cart.Reset()
	guard.unlock()

	s.metrics.Submission("ok")
	log.Info("transfer submitted",
		zap.Int("to_clinic_id", req.ToClinicID),
		zap.Int("lines", len(req.Products)),
	)

	s.record(ctx, log, domain.TransferRecord{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		ToClinicID:     req.ToClinicID,
		Notes:          req.Notes,
		Products:       req.Products,
		Message:        conf.Message,
		IdempotencyKey: key,
		CreatedAt:      start,
	})
	return conf, nil
}

// History lists confirmed transfers, newest first. limit is capped at
// MaxHistoryLimit.
func (s *TransferService) History(ctx context.Context, limit int) ([]domain.TransferRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	limit = min(max(limit, 1), MaxHistoryLimit)
	records, err := s.history.ListTransfers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return records, nil
}

func (s *TransferService) record(ctx context.Context, log *zap.Logger, rec domain.TransferRecord) {
	if s.history == nil {
		return
	}
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := s.history.RecordTransfer(ctx, rec); err != nil {
		log.Error("failed to record transfer history", zap.String("transfer_id", rec.ID), zap.Error(err))
	}
}

func (s *TransferService) releaseKey(ctx context.Context, log *zap.Logger, key string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := s.cache.ReleaseIdempotency(ctx, key); err != nil {
		log.Warn("failed to release idempotency key", zap.Error(err))
	}
}

func idempotencyKey(sessionID string, revision int64) string {
	return fmt.Sprintf("transfer:%s:%d", sessionID, revision)
}

// bookkeepingContext gives follow-up writes their own deadline, so a POST that
// used up the submit timeout still gets its key released.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}
