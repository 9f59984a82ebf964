package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chachabrian/quickmatch-backend/internal/models"
)

// GormStore is the Postgres-backed Store. Every state-machine write is a single
// conditional UPDATE, so correctness holds across processes sharing the database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func lookupErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrapf(err, "failed to load %s", what)
}

// ReserveCredit runs `UPDATE ... SET remaining = remaining - 1 WHERE remaining > 0`.
func (s *GormStore) ReserveCredit(ctx context.Context, clientID uint) (int, bool, error) {
	var bal models.CreditBalance
	res := s.db.WithContext(ctx).Model(&bal).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "remaining"}}}).
		Where("client_id = ? AND remaining > 0", clientID).
		UpdateColumn("remaining", gorm.Expr("remaining - 1"))
	if res.Error != nil {
		return 0, false, errors.Wrap(res.Error, "failed to reserve credit")
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return bal.Remaining, true, nil
}

func (s *GormStore) RefundCredit(ctx context.Context, clientID uint) error {
	err := s.db.WithContext(ctx).Model(&models.CreditBalance{}).
		Where("client_id = ?", clientID).
		UpdateColumn("remaining", gorm.Expr("remaining + 1")).Error
	return errors.Wrap(err, "failed to refund credit")
}

func (s *GormStore) GrantCredits(ctx context.Context, clientID uint, amount int) (int, error) {
	now := time.Now().UTC()
	row := models.CreditBalance{ClientID: clientID, Remaining: amount, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"remaining":  gorm.Expr("credit_balances.remaining + ?", amount),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to grant credits")
	}
	return s.CreditBalance(ctx, clientID)
}

func (s *GormStore) CreditBalance(ctx context.Context, clientID uint) (int, error) {
	var bal models.CreditBalance
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to load credit balance")
	}
	return bal.Remaining, nil
}

func (s *GormStore) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, lookupErr(err, "category")
	}
	return &c, nil
}

func (s *GormStore) GetBusiness(ctx context.Context, id uint) (*models.Business, error) {
	var b models.Business
	if err := s.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, lookupErr(err, "business")
	}
	return &b, nil
}

func (s *GormStore) GetService(ctx context.Context, id uint) (*models.Service, error) {
	var svc models.Service
	if err := s.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		return nil, lookupErr(err, "service")
	}
	return &svc, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

func (s *GormStore) CheapestService(ctx context.Context, businessID, categoryID uint) (*models.Service, error) {
	var svc models.Service
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND category_id = ? AND active = ?", businessID, categoryID, true).
		Order("price ASC, id ASC").
		First(&svc).Error
	if err != nil {
		return nil, lookupErr(err, "service")
	}
	return &svc, nil
}

func (s *GormStore) FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	var out []Candidate
	tx := s.db.WithContext(ctx).Table("services").
		Select("services.business_id AS business_id, MIN(services.price) AS reference_price, " +
			"businesses.latitude AS latitude, businesses.longitude AS longitude").
		Joins("JOIN businesses ON businesses.id = services.business_id").
		Where("services.category_id = ? AND services.active = ? AND services.price <= ?", q.CategoryID, true, q.MaxPrice).
		Group("services.business_id, businesses.latitude, businesses.longitude").
		Order("reference_price ASC, services.business_id ASC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Scan(&out).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query candidates")
	}
	return out, nil
}

func (s *GormStore) IsEligible(ctx context.Context, businessID, categoryID uint, maxPrice int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("business_id = ? AND category_id = ? AND active = ? AND price <= ?", businessID, categoryID, true, maxPrice).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check eligibility")
	}
	return n > 0, nil
}

func (s *GormStore) CreateRequest(ctx context.Context, r *models.BookingRequest) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(r).Error, "failed to create booking request")
}

func (s *GormStore) GetRequest(ctx context.Context, id uint) (*models.BookingRequest, error) {
	var r models.BookingRequest
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, lookupErr(err, "booking request")
	}
	return &r, nil
}

func applyTransition(tx *gorm.DB, t Transition) *gorm.DB {
	q := tx.Model(&models.BookingRequest{}).
		Where("id = ? AND status = ?", t.RequestID, models.RequestStatusPending)
	if t.ClientID != 0 {
		q = q.Where("client_id = ?", t.ClientID)
	}
	switch t.Deadline {
	case DeadlineOpen:
		q = q.Where("expires_at >= ?", t.Now)
	case DeadlinePassed:
		q = q.Where("expires_at < ?", t.Now)
	}

	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": t.Now,
	}
	if t.AcceptedBy != nil {
		updates["accepted_by"] = *t.AcceptedBy
	}
	return q.Updates(updates)
}

func (s *GormStore) TransitionRequest(ctx context.Context, t Transition) (bool, error) {
	res := applyTransition(s.db.WithContext(ctx), t)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to transition booking request")
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ConfirmRequest(ctx context.Context, t Transition, booking *models.Booking) (bool, error) {
	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := applyTransition(tx, t)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(booking).Error; err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to confirm booking request")
	}
	return won, nil
}

func (s *GormStore) ListOverdueRequests(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.BookingRequest{}).
		Where("status = ? AND expires_at < ?", models.RequestStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list overdue requests")
	}
	return ids, nil
}

func (s *GormStore) ListOpenRequestsForBusiness(ctx context.Context, businessID uint, now time.Time, limit int) ([]models.BookingRequest, error) {
	var out []models.BookingRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at >= ?", models.RequestStatusPending, now).
		Where(`EXISTS (
			SELECT 1 FROM services s
			WHERE s.business_id = ? AND s.active = ?
			AND s.category_id = booking_requests.category_id
			AND s.price <= booking_requests.offered_price)`, businessID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list open requests")
	}
	return out, nil
}

// UpsertOffer relies on the DO UPDATE ... WHERE guard: a repeated action touches no row.
func (s *GormStore) UpsertOffer(ctx context.Context, requestID, businessID uint, status models.OfferStatus, now time.Time) (bool, error) {
	offer := models.Offer{
		RequestID:  requestID,
		BusinessID: businessID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}, {Name: "business_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "offers.status <> excluded.status"},
		}},
	}).Create(&offer)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to upsert offer")
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetOffer(ctx context.Context, requestID, businessID uint) (*models.Offer, error) {
	var o models.Offer
	err := s.db.WithContext(ctx).
		Where("request_id = ? AND business_id = ?", requestID, businessID).
		First(&o).Error
	if err != nil {
		return nil, lookupErr(err, "offer")
	}
	return &o, nil
}

func (s *GormStore) ListOffers(ctx context.Context, requestID uint, status models.OfferStatus) ([]models.Offer, error) {
	var out []models.Offer
	err := s.db.WithContext(ctx).
		Preload("Business").
		Where("request_id = ? AND status = ?", requestID, status).
		Order("updated_at ASC, business_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list offers")
	}
	return out, nil
}

func (s *GormStore) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, lookupErr(err, "booking")
	}
	return &b, nil
}

func (s *GormStore) GetBookingByRequest(ctx context.Context, requestID uint) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&b).Error; err != nil {
		return nil, lookupErr(err, "booking")
	}
	return &b, nil
}

func (s *GormStore) ListBookings(ctx context.Context, clientID, businessID uint) ([]models.Booking, error) {
	var out []models.Booking
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if clientID != 0 {
		q = q.Where("client_id = ?", clientID)
	}
	if businessID != 0 {
		q = q.Where("business_id = ?", businessID)
	}
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list bookings")
	}
	return out, nil
}
