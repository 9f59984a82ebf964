package quickmatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

type ConfirmInput struct {
	RequestID  uint
	BusinessID uint
	ClientID   uint
	// ServiceID is optional. When nil the winner's cheapest matching service is used.
	ServiceID *uint
}

// Arbiter moves requests out of pending. Confirm, Cancel and Expire all go through
// the store's conditional transition, so exactly one of them can ever win for a
// given request, across processes.
type Arbiter struct {
	*deps
}

func (a *Arbiter) Confirm(ctx context.Context, in ConfirmInput) (*models.Booking, error) {
	booking, err := a.confirm(ctx, in)
	outcome := "confirmed"
	switch {
	case errors.Is(err, ErrRequestExpired):
		outcome = "expired"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case err != nil:
		outcome = "rejected"
	}
	a.m.arbitrateTotal.WithLabelValues("confirm", outcome).Inc()
	return booking, err
}

func (a *Arbiter) confirm(ctx context.Context, in ConfirmInput) (*models.Booking, error) {
	req, err := a.store.GetRequest(ctx, in.RequestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.ClientID != in.ClientID {
		return nil, ErrForbidden
	}

	now := a.now()
	if !req.IsPending() {
		return nil, terminalErr(req.Status)
	}
	if req.IsOverdue(now) {
		a.expireLazily(ctx, req.ID)
		return nil, ErrRequestExpired
	}

	offer, err := a.store.GetOffer(ctx, req.ID, in.BusinessID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && offer.Status != models.OfferStatusAccepted) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}

	serviceID, err := a.chooseService(ctx, req, in)
	if err != nil {
		return nil, err
	}

	winner := in.BusinessID
	booking := &models.Booking{
		RequestID:     req.ID,
		ClientID:      req.ClientID,
		BusinessID:    winner,
		ServiceID:     serviceID,
		RequestedTime: req.RequestedTime,
		TotalPrice:    req.OfferedPrice,
		Notes:         req.Description,
		CreatedAt:     now,
	}
	won, err := a.store.ConfirmRequest(ctx, repository.Transition{
		RequestID:  req.ID,
		To:         models.RequestStatusConfirmed,
		ClientID:   in.ClientID,
		AcceptedBy: &winner,
		Deadline:   repository.DeadlineOpen,
		Now:        now,
	}, booking)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, a.lostTo(ctx, req.ID)
	}

	a.log.WithFields(logrus.Fields{
		"requestId":  req.ID,
		"businessId": winner,
		"bookingId":  booking.ID,
	}).Info("Booking request confirmed")

	confirmed := events.BookingConfirmed{BookingID: booking.ID, RequestID: req.ID}
	a.notify(ctx, events.ClientChannel(req.ClientID), confirmed)
	a.notify(ctx, events.BusinessChannel(winner), confirmed)
	a.notifyAccepted(ctx, req.ID, winner, events.RequestTaken{RequestID: req.ID, BusinessID: winner})

	return booking, nil
}

func (a *Arbiter) chooseService(ctx context.Context, req *models.BookingRequest, in ConfirmInput) (*uint, error) {
	if in.ServiceID != nil {
		svc, err := a.store.GetService(ctx, *in.ServiceID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validationf("unknown serviceId %d", *in.ServiceID)
		}
		if err != nil {
			return nil, err
		}
		if svc.BusinessID != in.BusinessID || svc.CategoryID != req.CategoryID || !svc.Active {
			return nil, validationf("service %d is not offered by business %d in this category", svc.ID, in.BusinessID)
		}
		id := svc.ID
		return &id, nil
	}

	svc, err := a.store.CheapestService(ctx, in.BusinessID, req.CategoryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := svc.ID
	return &id, nil
}

// lostTo explains a lost transition by re-reading the request. An overdue request
// that is still pending is expired on the spot.
func (a *Arbiter) lostTo(ctx context.Context, requestID uint) error {
	current, err := a.store.GetRequest(ctx, requestID)
	if err != nil {
		return ErrRequestResolved
	}
	if current.IsPending() {
		if current.IsOverdue(a.now()) {
			a.expireLazily(ctx, requestID)
			return ErrRequestExpired
		}
		return ErrRequestResolved
	}
	return terminalErr(current.Status)
}

func terminalErr(status models.RequestStatus) error {
	if status == models.RequestStatusExpired {
		return ErrRequestExpired
	}
	return ErrRequestResolved
}

func (a *Arbiter) Cancel(ctx context.Context, requestID, clientID uint) error {
	err := a.cancel(ctx, requestID, clientID)
	outcome := "cancelled"
	switch {
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case err != nil:
		outcome = "rejected"
	}
	a.m.arbitrateTotal.WithLabelValues("cancel", outcome).Inc()
	return err
}

func (a *Arbiter) cancel(ctx context.Context, requestID, clientID uint) error {
	req, err := a.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRequestNotFound
	}
	if err != nil {
		return err
	}
	if req.ClientID != clientID {
		return ErrForbidden
	}
	if !req.IsPending() {
		return terminalErr(req.Status)
	}

	won, err := a.store.TransitionRequest(ctx, repository.Transition{
		RequestID: requestID,
		To:        models.RequestStatusCancelled,
		ClientID:  clientID,
		Deadline:  repository.DeadlineAny,
		Now:       a.now(),
	})
	if err != nil {
		return err
	}
	if !won {
		current, err := a.store.GetRequest(ctx, requestID)
		if err != nil {
			return ErrRequestResolved
		}
		return terminalErr(current.Status)
	}

	a.log.WithField("requestId", requestID).Info("Booking request cancelled")
	a.notifyAccepted(ctx, requestID, 0, events.RequestCancelled{RequestID: requestID})
	return nil
}

// Expire moves an overdue pending request to expired. It reports false when the
// request is not overdue or another transition got there first.
func (a *Arbiter) Expire(ctx context.Context, requestID uint) (bool, error) {
	won, err := a.store.TransitionRequest(ctx, repository.Transition{
		RequestID: requestID,
		To:        models.RequestStatusExpired,
		Deadline:  repository.DeadlinePassed,
		Now:       a.now(),
	})
	if err != nil {
		return false, err
	}
	if !won {
		a.m.arbitrateTotal.WithLabelValues("expire", "conflict").Inc()
		return false, nil
	}
	a.m.arbitrateTotal.WithLabelValues("expire", "expired").Inc()

	req, err := a.store.GetRequest(ctx, requestID)
	if err != nil {
		a.log.WithError(err).WithField("requestId", requestID).Warn("Failed to load expired request")
		return true, nil
	}
	a.log.WithField("requestId", requestID).Info("Booking request expired")

	ev := events.RequestExpired{RequestID: requestID}
	a.notify(ctx, events.ClientChannel(req.ClientID), ev)
	a.notifyAccepted(ctx, requestID, 0, ev)
	return true, nil
}

func (a *Arbiter) expireLazily(ctx context.Context, requestID uint) {
	if _, err := a.Expire(ctx, requestID); err != nil {
		a.log.WithError(err).WithField("requestId", requestID).Warn("Failed to expire overdue request")
	}
}

// notifyAccepted sends ev to every business holding an accepted offer, except skip.
func (a *Arbiter) notifyAccepted(ctx context.Context, requestID, skip uint, ev events.Outbound) {
	offers, err := a.store.ListOffers(ctx, requestID, models.OfferStatusAccepted)
	if err != nil {
		a.log.WithError(err).WithField("requestId", requestID).Warn("Failed to list offers for notification")
		return
	}
	seen := make(map[uint]struct{}, len(offers))
	for _, o := range offers {
		if o.BusinessID == skip {
			continue
		}
		if _, dup := seen[o.BusinessID]; dup {
			continue
		}
		seen[o.BusinessID] = struct{}{}
		a.notify(ctx, events.BusinessChannel(o.BusinessID), ev)
	}
}
