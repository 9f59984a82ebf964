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

type SubmitInput struct {
	ClientID      uint
	CategoryID    uint
	OfferedPrice  int64
	RequestedTime time.Time
	Description   string
	Location      *Location
}

type SubmitResult struct {
	Request    *models.BookingRequest
	Remaining  int
	Candidates []uint
}

// Intake validates and stores a new request, then fans it out to the matched
// businesses.
type Intake struct {
	*deps
	credits *CreditGate
	matcher *Matcher
	ttl     time.Duration
}

func (in *Intake) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	res, err := in.submit(ctx, input)
	in.m.submitTotal.WithLabelValues(resultLabel(err)).Inc()
	return res, err
}

func (in *Intake) submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	now := in.now()
	if input.ClientID == 0 {
		return nil, validationf("clientId is required")
	}
	if input.OfferedPrice <= 0 {
		return nil, validationf("offeredPrice must be greater than 0")
	}
	if !input.RequestedTime.After(now) {
		return nil, validationf("requestedTime must be in the future")
	}
	category, err := in.store.GetCategory(ctx, input.CategoryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, validationf("unknown categoryId %d", input.CategoryID)
	}
	if err != nil {
		return nil, err
	}

	remaining, err := in.credits.Reserve(ctx, input.ClientID)
	if err != nil {
		return nil, err
	}

	req := &models.BookingRequest{
		ClientID:      input.ClientID,
		CategoryID:    category.ID,
		OfferedPrice:  input.OfferedPrice,
		RequestedTime: input.RequestedTime.UTC(),
		Description:   input.Description,
		Status:        models.RequestStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(in.ttl),
	}
	if input.Location != nil {
		lat, lng := input.Location.Lat, input.Location.Lng
		req.ClientLat, req.ClientLng = &lat, &lng
	}
	if err := in.store.CreateRequest(ctx, req); err != nil {
		if rerr := in.credits.Refund(ctx, input.ClientID); rerr != nil {
			in.log.WithError(rerr).WithField("clientId", input.ClientID).Error("Failed to refund credit")
		}
		return nil, err
	}

	log := in.log.WithFields(logrus.Fields{"requestId": req.ID, "clientId": req.ClientID})

	// The request is durable from here on. Matching problems only cost fan-out;
	// businesses can still discover it by polling.
	candidates, err := in.matcher.Find(ctx, req.CategoryID, req.OfferedPrice, input.Location)
	if err != nil {
		log.WithError(err).Error("Failed to match candidates")
		return &SubmitResult{Request: req, Remaining: remaining}, nil
	}
	in.m.candidates.Observe(float64(len(candidates)))

	clientName := ""
	if u, err := in.store.GetUser(ctx, req.ClientID); err == nil {
		clientName = u.Username
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.WithError(err).Warn("Failed to load client profile")
	}

	ev := events.NewRequest{
		RequestID:   req.ID,
		ClientName:  clientName,
		Service:     category.Name,
		Price:       req.OfferedPrice,
		Time:        req.RequestedTime,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	}
	for _, businessID := range candidates {
		in.notify(ctx, events.BusinessChannel(businessID), ev)
	}
	log.WithField("candidates", len(candidates)).Info("Booking request submitted")

	return &SubmitResult{Request: req, Remaining: remaining, Candidates: candidates}, nil
}
