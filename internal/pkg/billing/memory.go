package billing

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
)

type memoryState struct {
	nextID uint

	mappings         map[uint]models.ConsultantClientMapping
	audit            []models.AmountChangeLog
	auditByMapping   map[uint][]int
	discounts        []models.DiscountAccounting
	transactions     []models.FinancialTransaction
	packageDiscounts map[string]models.PackageDiscount
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextID:           s.nextID,
		mappings:         maps.Clone(s.mappings),
		audit:            slices.Clone(s.audit),
		auditByMapping:   make(map[uint][]int, len(s.auditByMapping)),
		discounts:        slices.Clone(s.discounts),
		transactions:     slices.Clone(s.transactions),
		packageDiscounts: maps.Clone(s.packageDiscounts),
	}
	for k, v := range s.auditByMapping {
		c.auditByMapping[k] = slices.Clone(v)
	}
	return c
}

func (s *memoryState) id() uint {
	s.nextID++
	return s.nextID
}

// MemoryRepository is an in-process Repository. Audit entries live in an
// append-only arena indexed by mapping id. Transactions run against a copy of
// the state that replaces the original only when the callback succeeds.
type MemoryRepository struct {
	mu    *sync.Mutex
	state *memoryState
	inTx  bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mu: &sync.Mutex{},
		state: &memoryState{
			mappings:         make(map[uint]models.ConsultantClientMapping),
			auditByMapping:   make(map[uint][]int),
			packageDiscounts: make(map[string]models.PackageDiscount),
		},
	}
}

func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &MemoryRepository{mu: r.mu, state: r.state.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *MemoryRepository) CreateMapping(ctx context.Context, m *models.ConsultantClientMapping) error {
	defer r.lock()()
	now := time.Now()
	m.ID = r.state.id()
	if m.Version == 0 {
		m.Version = 1
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	r.state.mappings[m.ID] = *m
	return nil
}

func (r *MemoryRepository) FindMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error) {
	defer r.lock()()
	m, ok := r.state.mappings[id]
	if !ok || m.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *MemoryRepository) LockMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error) {
	return r.FindMapping(ctx, id)
}

func (r *MemoryRepository) SaveMapping(ctx context.Context, m *models.ConsultantClientMapping) error {
	defer r.lock()()
	stored, ok := r.state.mappings[m.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != m.Version {
		return ErrConcurrentUpdate
	}
	m.Version++
	m.CreatedAt = stored.CreatedAt
	m.UpdatedAt = time.Now()
	r.state.mappings[m.ID] = *m
	return nil
}

func (r *MemoryRepository) ListMappings(ctx context.Context, filter MappingFilter) ([]models.ConsultantClientMapping, error) {
	defer r.lock()()
	var out []models.ConsultantClientMapping
	for _, m := range r.state.mappings {
		if m.DeletedAt.Valid {
			continue
		}
		if filter.BranchCode != "" && m.BranchCode != filter.BranchCode {
			continue
		}
		if filter.ConsultantID != 0 && m.ConsultantID != filter.ConsultantID {
			continue
		}
		if filter.ClientID != 0 && m.ClientID != filter.ClientID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListBranchCodes(ctx context.Context) ([]string, error) {
	defer r.lock()()
	seen := make(map[string]struct{})
	var out []string
	for _, m := range r.state.mappings {
		if m.BranchCode == "" || m.DeletedAt.Valid {
			continue
		}
		if _, ok := seen[m.BranchCode]; ok {
			continue
		}
		seen[m.BranchCode] = struct{}{}
		out = append(out, m.BranchCode)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) AppendAudit(ctx context.Context, entry *models.AmountChangeLog) error {
	defer r.lock()()
	entry.ID = r.state.id()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.state.audit = append(r.state.audit, *entry)
	idx := len(r.state.audit) - 1
	r.state.auditByMapping[entry.MappingID] = append(r.state.auditByMapping[entry.MappingID], idx)
	return nil
}

func (r *MemoryRepository) ListAudit(ctx context.Context, mappingID uint) ([]models.AmountChangeLog, error) {
	defer r.lock()()
	idxs := r.state.auditByMapping[mappingID]
	out := make([]models.AmountChangeLog, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, r.state.audit[i])
	}
	return out, nil
}

func (r *MemoryRepository) CreateDiscount(ctx context.Context, d *models.DiscountAccounting) error {
	defer r.lock()()
	now := time.Now()
	d.ID = r.state.id()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.state.discounts = append(r.state.discounts, *d)
	return nil
}

func (r *MemoryRepository) UpdateDiscount(ctx context.Context, d *models.DiscountAccounting) error {
	defer r.lock()()
	for i := range r.state.discounts {
		if r.state.discounts[i].ID == d.ID {
			d.UpdatedAt = time.Now()
			r.state.discounts[i] = *d
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) LatestDiscount(ctx context.Context, mappingID uint) (*models.DiscountAccounting, error) {
	defer r.lock()()
	for i := len(r.state.discounts) - 1; i >= 0; i-- {
		if r.state.discounts[i].MappingID == mappingID {
			d := r.state.discounts[i]
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListDiscounts(ctx context.Context, branchCode, status string) ([]models.DiscountAccounting, error) {
	defer r.lock()()
	var out []models.DiscountAccounting
	for _, d := range r.state.discounts {
		if branchCode != "" && d.BranchCode != branchCode {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *MemoryRepository) CountDiscountUsage(ctx context.Context, code string) (int64, error) {
	defer r.lock()()
	var n int64
	for _, d := range r.state.discounts {
		if d.DiscountCode == code && (d.Status == models.DiscountStatusPending || d.Status == models.DiscountStatusApplied) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CreateTransaction(ctx context.Context, t *models.FinancialTransaction) error {
	defer r.lock()()
	now := time.Now()
	t.ID = r.state.id()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.state.transactions = append(r.state.transactions, *t)
	return nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, mappingID uint) ([]models.FinancialTransaction, error) {
	defer r.lock()()
	var out []models.FinancialTransaction
	for _, t := range r.state.transactions {
		if t.MappingID == mappingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListTransactionsInPeriod(ctx context.Context, branchCode string, from, to time.Time) ([]models.FinancialTransaction, error) {
	defer r.lock()()
	var out []models.FinancialTransaction
	for _, t := range r.state.transactions {
		if branchCode != "" && t.BranchCode != branchCode {
			continue
		}
		if t.TransactionDate.Before(from) || !t.TransactionDate.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *MemoryRepository) UpdateTransactionsStatus(ctx context.Context, discountID uint, status string) (int64, error) {
	defer r.lock()()
	var n int64
	for i := range r.state.transactions {
		t := &r.state.transactions[i]
		if t.DiscountID == nil || *t.DiscountID != discountID || t.Status != models.TransactionStatusCompleted {
			continue
		}
		t.Status = status
		t.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (r *MemoryRepository) ExistsTransaction(ctx context.Context, mappingID uint, txType string, amount int64) (bool, error) {
	defer r.lock()()
	for _, t := range r.state.transactions {
		if t.MappingID == mappingID && t.Type == txType && t.Amount == amount && t.Status == models.TransactionStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CreatePackageDiscount(ctx context.Context, d *models.PackageDiscount) error {
	defer r.lock()()
	if _, ok := r.state.packageDiscounts[d.Code]; ok {
		return invalidArgument("discount code %q already exists", d.Code)
	}
	now := time.Now()
	d.ID = r.state.id()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.state.packageDiscounts[d.Code] = *d
	return nil
}

func (r *MemoryRepository) FindPackageDiscount(ctx context.Context, code string) (*models.PackageDiscount, error) {
	defer r.lock()()
	d, ok := r.state.packageDiscounts[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListPackageDiscounts(ctx context.Context, activeOnly bool) ([]models.PackageDiscount, error) {
	defer r.lock()()
	var out []models.PackageDiscount
	for _, d := range r.state.packageDiscounts {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
