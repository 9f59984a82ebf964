package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/chachabrian/quickmatch-backend/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// Deadline narrows a request transition by its expiry window.
type Deadline int

const (
	DeadlineAny    Deadline = iota
	DeadlineOpen            // expires_at >= now
	DeadlinePassed          // expires_at < now
)

// Transition describes a compare-and-swap of a booking request out of pending.
// It applies only while status is still pending; zero affected rows means another
// writer resolved the request first.
type Transition struct {
	RequestID  uint
	To         models.RequestStatus
	ClientID   uint // 0 matches any client
	AcceptedBy *uint
	Deadline   Deadline
	Now        time.Time
}

type CandidateQuery struct {
	CategoryID uint
	MaxPrice   int64
	Limit      int // 0 means unbounded
}

// Candidate is an eligible business with its cheapest matching service price.
type Candidate struct {
	BusinessID     uint
	ReferencePrice int64
	Latitude       *float64
	Longitude      *float64
}

type CreditStore interface {
	// ReserveCredit decrements the balance iff it is positive. ok is false when no
	// credit was available.
	ReserveCredit(ctx context.Context, clientID uint) (remaining int, ok bool, err error)
	RefundCredit(ctx context.Context, clientID uint) error
	GrantCredits(ctx context.Context, clientID uint, amount int) (int, error)
	CreditBalance(ctx context.Context, clientID uint) (int, error)
}

type DirectoryStore interface {
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	GetBusiness(ctx context.Context, id uint) (*models.Business, error)
	GetService(ctx context.Context, id uint) (*models.Service, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	// CheapestService returns the lowest priced active service of a business in a
	// category, ties broken by service ID.
	CheapestService(ctx context.Context, businessID, categoryID uint) (*models.Service, error)
	// FindCandidates orders by reference price then business ID.
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
	IsEligible(ctx context.Context, businessID, categoryID uint, maxPrice int64) (bool, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.BookingRequest) error
	GetRequest(ctx context.Context, id uint) (*models.BookingRequest, error)
	TransitionRequest(ctx context.Context, t Transition) (bool, error)
	// ConfirmRequest applies t and, only when it wins, inserts booking in the same
	// transaction.
	ConfirmRequest(ctx context.Context, t Transition, booking *models.Booking) (bool, error)
	ListOverdueRequests(ctx context.Context, now time.Time, limit int) ([]uint, error)
	ListOpenRequestsForBusiness(ctx context.Context, businessID uint, now time.Time, limit int) ([]models.BookingRequest, error)
}

type OfferStore interface {
	// UpsertOffer writes the (request, business) row. changed is false when the row
	// already held status.
	UpsertOffer(ctx context.Context, requestID, businessID uint, status models.OfferStatus, now time.Time) (changed bool, err error)
	GetOffer(ctx context.Context, requestID, businessID uint) (*models.Offer, error)
	// ListOffers returns offers with Business loaded, oldest update first.
	ListOffers(ctx context.Context, requestID uint, status models.OfferStatus) ([]models.Offer, error)
}

type BookingStore interface {
	GetBooking(ctx context.Context, id uint) (*models.Booking, error)
	GetBookingByRequest(ctx context.Context, requestID uint) (*models.Booking, error)
	ListBookings(ctx context.Context, clientID, businessID uint) ([]models.Booking, error)
}

type Store interface {
	CreditStore
	DirectoryStore
	RequestStore
	OfferStore
	BookingStore
}
