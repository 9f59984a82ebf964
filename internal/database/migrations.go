package database

import (
	"gorm.io/gorm"

	"github.com/chachabrian/quickmatch-backend/internal/models"
)

// constraints backstop the invariants the store enforces with conditional updates.
var constraints = []string{
	`ALTER TABLE booking_requests DROP CONSTRAINT IF EXISTS booking_requests_status_check`,
	`ALTER TABLE booking_requests ADD CONSTRAINT booking_requests_status_check CHECK (status IN ('pending', 'confirmed', 'expired', 'cancelled'))`,
	`ALTER TABLE booking_requests DROP CONSTRAINT IF EXISTS booking_requests_accepted_by_check`,
	`ALTER TABLE booking_requests ADD CONSTRAINT booking_requests_accepted_by_check CHECK ((status = 'confirmed') = (accepted_by IS NOT NULL))`,
	`ALTER TABLE booking_requests DROP CONSTRAINT IF EXISTS booking_requests_offered_price_check`,
	`ALTER TABLE booking_requests ADD CONSTRAINT booking_requests_offered_price_check CHECK (offered_price > 0)`,
	`ALTER TABLE offers DROP CONSTRAINT IF EXISTS offers_status_check`,
	`ALTER TABLE offers ADD CONSTRAINT offers_status_check CHECK (status IN ('accepted', 'rejected'))`,
	`ALTER TABLE credit_balances DROP CONSTRAINT IF EXISTS credit_balances_remaining_check`,
	`ALTER TABLE credit_balances ADD CONSTRAINT credit_balances_remaining_check CHECK (remaining >= 0)`,
}

func RunMigrations(db *gorm.DB) error {
	// Directory tables are owned by the catalogue service; they are only created
	// here so a fresh database can run on its own.
	err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Business{},
		&models.Service{},
		&models.CreditBalance{},
		&models.BookingRequest{},
		&models.Offer{},
		&models.Booking{},
	)
	if err != nil {
		return err
	}
	return applyConstraints(db)
}

func applyConstraints(db *gorm.DB) error {
	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
