package service

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/logging"
	"github.com/rl1809/stock-transfer/internal/metrics"
	"github.com/rl1809/stock-transfer/internal/port"
)

const (
	resourceClinics = "clinics"
	resourceItems   = "inventory"
)

// ReferenceData is an immutable snapshot of the clinic and inventory option
// sets. A failed fetch leaves its mapping empty.
type ReferenceData struct {
	clinics   map[int]domain.Clinic
	items     map[int]domain.InventoryItem
	clinicIDs []int
	itemIDs   []int
	loadedAt  time.Time
}

func NewReferenceData(clinics []domain.Clinic, items []domain.InventoryItem) *ReferenceData {
	r := &ReferenceData{
		clinics:  make(map[int]domain.Clinic, len(clinics)),
		items:    make(map[int]domain.InventoryItem, len(items)),
		loadedAt: time.Now(),
	}
	for _, c := range clinics {
		if _, dup := r.clinics[c.ID]; !dup {
			r.clinicIDs = append(r.clinicIDs, c.ID)
		}
		r.clinics[c.ID] = c
	}
	for _, it := range items {
		if _, dup := r.items[it.ID]; !dup {
			r.itemIDs = append(r.itemIDs, it.ID)
		}
		r.items[it.ID] = it
	}
	return r
}

func (r *ReferenceData) Item(id int) (domain.InventoryItem, bool) {
	it, ok := r.items[id]
	return it, ok
}

func (r *ReferenceData) Items() []domain.InventoryItem {
	out := make([]domain.InventoryItem, 0, len(r.itemIDs))
	for _, id := range r.itemIDs {
		out = append(out, r.items[id])
	}
	return out
}

// Destination resolves a clinic that may receive a transfer. Main inventory
// clinics are never destinations.
func (r *ReferenceData) Destination(id int) (domain.Clinic, bool) {
	c, ok := r.clinics[id]
	if !ok || c.IsMainInventory {
		return domain.Clinic{}, false
	}
	return c, true
}

func (r *ReferenceData) Destinations() []domain.Clinic {
	out := make([]domain.Clinic, 0, len(r.clinicIDs))
	for _, id := range r.clinicIDs {
		if c := r.clinics[id]; !c.IsMainInventory {
			out = append(out, c)
		}
	}
	return out
}

func (r *ReferenceData) CanChooseDestination() bool {
	return slices.ContainsFunc(r.clinicIDs, func(id int) bool { return !r.clinics[id].IsMainInventory })
}

func (r *ReferenceData) CanAddItems() bool {
	return len(r.items) > 0
}

func (r *ReferenceData) LoadedAt() time.Time {
	return r.loadedAt
}

type ReferenceSource interface {
	Current() *ReferenceData
}

// LoadError reports which reference fetches failed.
type LoadError struct {
	Clinics error
	Items   error
}

func (e *LoadError) Error() string {
	switch {
	case e.Clinics != nil && e.Items != nil:
		return fmt.Sprintf("load clinics: %v; load inventory: %v", e.Clinics, e.Items)
	case e.Clinics != nil:
		return fmt.Sprintf("load clinics: %v", e.Clinics)
	default:
		return fmt.Sprintf("load inventory: %v", e.Items)
	}
}

func (e *LoadError) Unwrap() []error {
	var errs []error
	if e.Clinics != nil {
		errs = append(errs, e.Clinics)
	}
	if e.Items != nil {
		errs = append(errs, e.Items)
	}
	return errs
}

type ReferenceLoader struct {
	backend port.ClinicBackend
	logger  *zap.Logger
	metrics *metrics.Metrics
	current atomic.Pointer[ReferenceData]
	onLoad  func(*ReferenceData)
}

func NewReferenceLoader(backend port.ClinicBackend, logger *zap.Logger, m *metrics.Metrics) *ReferenceLoader {
	l := &ReferenceLoader{
		backend: backend,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
	l.current.Store(NewReferenceData(nil, nil))
	return l
}

// OnLoad registers a callback invoked with every new snapshot.
func (l *ReferenceLoader) OnLoad(fn func(*ReferenceData)) {
	l.onLoad = fn
}

func (l *ReferenceLoader) Current() *ReferenceData {
	return l.current.Load()
}

// Load fetches both option sets concurrently and swaps in a new snapshot. The
// snapshot is stored even when a fetch fails; the returned *LoadError says
// which mapping was left empty.
func (l *ReferenceLoader) Load(ctx context.Context) (*ReferenceData, error) {
	var (
		clinics    []domain.Clinic
		items      []domain.InventoryItem
		clinicsErr error
		itemsErr   error
		g          errgroup.Group
	)

	g.Go(func() error {
		clinics, clinicsErr = l.backend.ListClinics(ctx)
		return clinicsErr
	})
	g.Go(func() error {
		items, itemsErr = l.backend.ListTransferableItems(ctx)
		return itemsErr
	})
	// each failure is kept separately below
	_ = g.Wait()

	l.metrics.ReferenceLoad(resourceClinics, clinicsErr)
	l.metrics.ReferenceLoad(resourceItems, itemsErr)

	if clinicsErr != nil {
		clinics = nil
		l.logger.Warn("reference load failed", zap.String("resource", resourceClinics), zap.Error(clinicsErr))
	}
	if itemsErr != nil {
		items = nil
		l.logger.Warn("reference load failed", zap.String("resource", resourceItems), zap.Error(itemsErr))
	}

	data := NewReferenceData(clinics, items)
	l.current.Store(data)
	if l.onLoad != nil {
		l.onLoad(data)
	}

	l.logger.Info("reference data loaded",
		zap.Int("clinics", len(data.clinics)),
		zap.Int("items", len(data.items)),
	)

	if clinicsErr != nil || itemsErr != nil {
		return data, &LoadError{Clinics: clinicsErr, Items: itemsErr}
	}
	return data, nil
}
