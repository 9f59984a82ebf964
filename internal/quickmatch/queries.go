package quickmatch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

// Actor is the authenticated caller. For businesses ID is the business ID.
type Actor struct {
	ID   uint
	Type models.UserType
}

func (a Actor) IsClient() bool   { return a.Type == models.UserTypeClient }
func (a Actor) IsBusiness() bool { return a.Type == models.UserTypeBusiness }

// RequestView is the poll surface for one request.
type RequestView struct {
	models.BookingRequest
	BookingID   *uint              `json:"bookingId,omitempty"`
	OfferStatus models.OfferStatus `json:"offerStatus,omitempty"`
}

// GetRequest lets the owning client, or a business holding an offer row, read a
// request. An overdue pending request is expired before it is returned.
func (e *Engine) GetRequest(ctx context.Context, requestID uint, actor Actor) (*RequestView, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	view := &RequestView{}
	switch {
	case actor.IsClient() && req.ClientID == actor.ID:
	case actor.IsBusiness():
		offer, err := e.store.GetOffer(ctx, requestID, actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			if req.AcceptedBy == nil || *req.AcceptedBy != actor.ID {
				return nil, ErrForbidden
			}
		} else if err != nil {
			return nil, err
		} else {
			view.OfferStatus = offer.Status
		}
	default:
		return nil, ErrForbidden
	}

	if req.IsPending() && req.IsOverdue(e.now()) {
		if _, err := e.Arbiter.Expire(ctx, requestID); err != nil {
			return nil, err
		}
		if req, err = e.store.GetRequest(ctx, requestID); err != nil {
			return nil, err
		}
	}
	view.BookingRequest = *req

	if req.Status == models.RequestStatusConfirmed {
		b, err := e.store.GetBookingByRequest(ctx, requestID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if b != nil {
			id := b.ID
			view.BookingID = &id
		}
	}
	return view, nil
}

// OpenRequests lists pending, unexpired requests the business could accept.
func (e *Engine) OpenRequests(ctx context.Context, businessID uint, limit int) ([]models.BookingRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return e.store.ListOpenRequestsForBusiness(ctx, businessID, e.now(), limit)
}

func (e *Engine) ListBookings(ctx context.Context, actor Actor) ([]models.Booking, error) {
	if actor.IsBusiness() {
		return e.store.ListBookings(ctx, 0, actor.ID)
	}
	return e.store.ListBookings(ctx, actor.ID, 0)
}

func (e *Engine) GetBooking(ctx context.Context, bookingID uint, actor Actor) (*models.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if (actor.IsClient() && b.ClientID == actor.ID) || (actor.IsBusiness() && b.BusinessID == actor.ID) {
		return b, nil
	}
	return nil, ErrForbidden
}
