package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MappingFilter narrows mapping listings. Zero values are ignored.
type MappingFilter struct {
	BranchCode   string
	ConsultantID uint
	ClientID     uint
	Limit        int
	Offset       int
}

// Repository provides the persistence operations used by the billing service.
// Audit entries can only be appended and listed.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	CreateMapping(ctx context.Context, m *models.ConsultantClientMapping) error
	FindMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error)
	// LockMapping loads a mapping for update. Inside a transaction the row
	// stays locked until commit.
	LockMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error)
	// SaveMapping writes the mapping if its Version still matches the stored
	// one and increments Version. A mismatch yields ErrConcurrentUpdate.
	SaveMapping(ctx context.Context, m *models.ConsultantClientMapping) error
	ListMappings(ctx context.Context, filter MappingFilter) ([]models.ConsultantClientMapping, error)
	ListBranchCodes(ctx context.Context) ([]string, error)

	AppendAudit(ctx context.Context, entry *models.AmountChangeLog) error
	ListAudit(ctx context.Context, mappingID uint) ([]models.AmountChangeLog, error)

	CreateDiscount(ctx context.Context, d *models.DiscountAccounting) error
	UpdateDiscount(ctx context.Context, d *models.DiscountAccounting) error
	LatestDiscount(ctx context.Context, mappingID uint) (*models.DiscountAccounting, error)
	ListDiscounts(ctx context.Context, branchCode, status string) ([]models.DiscountAccounting, error)
	CountDiscountUsage(ctx context.Context, code string) (int64, error)

	CreateTransaction(ctx context.Context, t *models.FinancialTransaction) error
	ListTransactions(ctx context.Context, mappingID uint) ([]models.FinancialTransaction, error)
	ListTransactionsInPeriod(ctx context.Context, branchCode string, from, to time.Time) ([]models.FinancialTransaction, error)
	UpdateTransactionsStatus(ctx context.Context, discountID uint, status string) (int64, error)
	ExistsTransaction(ctx context.Context, mappingID uint, txType string, amount int64) (bool, error)

	CreatePackageDiscount(ctx context.Context, d *models.PackageDiscount) error
	FindPackageDiscount(ctx context.Context, code string) (*models.PackageDiscount, error)
	ListPackageDiscounts(ctx context.Context, activeOnly bool) ([]models.PackageDiscount, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateMapping(ctx context.Context, m *models.ConsultantClientMapping) error {
	if m.Version == 0 {
		m.Version = 1
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *gormRepository) FindMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error) {
	var m models.ConsultantClientMapping
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *gormRepository) LockMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error) {
	var m models.ConsultantClientMapping
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *gormRepository) SaveMapping(ctx context.Context, m *models.ConsultantClientMapping) error {
	prev := m.Version
	m.Version = prev + 1
	res := r.db.WithContext(ctx).
		Model(m).
		Where("version = ?", prev).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		m.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		m.Version = prev
		return ErrConcurrentUpdate
	}
	return nil
}

func (r *gormRepository) ListMappings(ctx context.Context, filter MappingFilter) ([]models.ConsultantClientMapping, error) {
	q := r.db.WithContext(ctx).Model(&models.ConsultantClientMapping{})
	if filter.BranchCode != "" {
		q = q.Where("branch_code = ?", filter.BranchCode)
	}
	if filter.ConsultantID != 0 {
		q = q.Where("consultant_id = ?", filter.ConsultantID)
	}
	if filter.ClientID != 0 {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var out []models.ConsultantClientMapping
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) ListBranchCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Model(&models.ConsultantClientMapping{}).
		Where("branch_code <> ''").
		Distinct().
		Order("branch_code ASC").
		Pluck("branch_code", &codes).Error
	return codes, err
}

func (r *gormRepository) AppendAudit(ctx context.Context, entry *models.AmountChangeLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) ListAudit(ctx context.Context, mappingID uint) ([]models.AmountChangeLog, error) {
	var out []models.AmountChangeLog
	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateDiscount(ctx context.Context, d *models.DiscountAccounting) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *gormRepository) UpdateDiscount(ctx context.Context, d *models.DiscountAccounting) error {
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *gormRepository) LatestDiscount(ctx context.Context, mappingID uint) (*models.DiscountAccounting, error) {
	var d models.DiscountAccounting
	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("id DESC").
		First(&d).Error
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *gormRepository) ListDiscounts(ctx context.Context, branchCode, status string) ([]models.DiscountAccounting, error) {
	q := r.db.WithContext(ctx).Model(&models.DiscountAccounting{})
	if branchCode != "" {
		q = q.Where("branch_code = ?", branchCode)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.DiscountAccounting
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) CountDiscountUsage(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.DiscountAccounting{}).
		Where("discount_code = ? AND status IN ?", code, []string{models.DiscountStatusPending, models.DiscountStatusApplied}).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) CreateTransaction(ctx context.Context, t *models.FinancialTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *gormRepository) ListTransactions(ctx context.Context, mappingID uint) ([]models.FinancialTransaction, error) {
	var out []models.FinancialTransaction
	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("transaction_date ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) ListTransactionsInPeriod(ctx context.Context, branchCode string, from, to time.Time) ([]models.FinancialTransaction, error) {
	q := r.db.WithContext(ctx).
		Where("transaction_date >= ? AND transaction_date < ?", from, to)
	if branchCode != "" {
		q = q.Where("branch_code = ?", branchCode)
	}
	var out []models.FinancialTransaction
	err := q.Order("transaction_date ASC, id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) UpdateTransactionsStatus(ctx context.Context, discountID uint, status string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FinancialTransaction{}).
		Where("discount_id = ? AND status = ?", discountID, models.TransactionStatusCompleted).
		Update("status", status)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) ExistsTransaction(ctx context.Context, mappingID uint, txType string, amount int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.FinancialTransaction{}).
		Where("mapping_id = ? AND type = ? AND amount = ? AND status = ?", mappingID, txType, amount, models.TransactionStatusCompleted).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) CreatePackageDiscount(ctx context.Context, d *models.PackageDiscount) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *gormRepository) FindPackageDiscount(ctx context.Context, code string) (*models.PackageDiscount, error) {
	var d models.PackageDiscount
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *gormRepository) ListPackageDiscounts(ctx context.Context, activeOnly bool) ([]models.PackageDiscount, error) {
	q := r.db.WithContext(ctx).Model(&models.PackageDiscount{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.PackageDiscount
	err := q.Order("code ASC").Find(&out).Error
	return out, err
}
