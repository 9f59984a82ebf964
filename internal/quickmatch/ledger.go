package quickmatch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

// Ledger records each business's accept or reject as one row per (request, business).
type Ledger struct {
	*deps
}

// OfferView is an accepted offer as shown to the requesting client.
type OfferView struct {
	BusinessID   uint      `json:"businessId"`
	BusinessName string    `json:"businessName"`
	Address      string    `json:"address"`
	Lat          *float64  `json:"lat,omitempty"`
	Lng          *float64  `json:"lng,omitempty"`
	Price        int64     `json:"price"`
	Rating       float64   `json:"rating"`
	LogoURL      string    `json:"logoUrl,omitempty"`
	RespondedAt  time.Time `json:"respondedAt"`
}

func (l *Ledger) RecordResponse(ctx context.Context, requestID, businessID uint, action events.Action) error {
	err := l.recordResponse(ctx, requestID, businessID, action)
	l.m.responseTotal.WithLabelValues(string(action), resultLabel(err)).Inc()
	return err
}

func (l *Ledger) recordResponse(ctx context.Context, requestID, businessID uint, action events.Action) error {
	var status models.OfferStatus
	switch action {
	case events.ActionAccept:
		status = models.OfferStatusAccepted
	case events.ActionReject:
		status = models.OfferStatusRejected
	default:
		return validationf("action must be accept or reject")
	}

	req, err := l.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRequestNotFound
	}
	if err != nil {
		return err
	}

	eligible, err := l.store.IsEligible(ctx, businessID, req.CategoryID, req.OfferedPrice)
	if err != nil {
		return err
	}
	if !eligible {
		return forbiddenf("business %d is not a candidate for request %d", businessID, requestID)
	}

	now := l.now()
	if status == models.OfferStatusAccepted {
		if !req.IsPending() {
			return terminalErr(req.Status)
		}
		if req.IsOverdue(now) {
			return ErrRequestExpired
		}
	}

	changed, err := l.store.UpsertOffer(ctx, requestID, businessID, status, now)
	if err != nil {
		return err
	}

	log := l.log.WithFields(logrus.Fields{"requestId": requestID, "businessId": businessID, "action": action})
	if !changed {
		log.Debug("Repeated response ignored")
		return nil
	}
	log.Info("Business response recorded")

	if status != models.OfferStatusAccepted {
		return nil
	}

	// A terminal transition may have committed between the check above and the
	// upsert. Its notifications have gone out already, so the accept must fail.
	current, err := l.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !current.IsPending() {
		log.WithField("status", current.Status).Info("Accept lost to a terminal transition")
		return terminalErr(current.Status)
	}

	business, err := l.store.GetBusiness(ctx, businessID)
	if err != nil {
		log.WithError(err).Warn("Failed to load business profile")
		return nil
	}
	price := req.OfferedPrice
	if svc, err := l.store.CheapestService(ctx, businessID, req.CategoryID); err == nil {
		price = svc.Price
	}
	l.notify(ctx, events.ClientChannel(req.ClientID), events.RequestOffered{
		RequestID:    requestID,
		BusinessID:   business.ID,
		BusinessName: business.Name,
		Address:      business.Address,
		Lat:          business.Latitude,
		Lng:          business.Longitude,
		Price:        price,
		Rating:       business.Rating,
		LogoURL:      l.logoURL(business.LogoKey),
	})
	return nil
}

// ListAccepted returns the live offers for a request in the order they arrived.
// Only the owning client may list them.
func (l *Ledger) ListAccepted(ctx context.Context, requestID, clientID uint) ([]OfferView, error) {
	req, err := l.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.ClientID != clientID {
		return nil, ErrForbidden
	}

	offers, err := l.store.ListOffers(ctx, requestID, models.OfferStatusAccepted)
	if err != nil {
		return nil, err
	}

	views := make([]OfferView, 0, len(offers))
	for _, o := range offers {
		v := OfferView{
			BusinessID:  o.BusinessID,
			Price:       req.OfferedPrice,
			RespondedAt: o.UpdatedAt,
		}
		if b := o.Business; b != nil {
			v.BusinessName = b.Name
			v.Address = b.Address
			v.Lat = b.Latitude
			v.Lng = b.Longitude
			v.Rating = b.Rating
			v.LogoURL = l.logoURL(b.LogoKey)
		}
		if svc, err := l.store.CheapestService(ctx, o.BusinessID, req.CategoryID); err == nil {
			v.Price = svc.Price
		}
		views = append(views, v)
	}
	return views, nil
}
