package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/chachabrian/quickmatch-backend/internal/models"
)

// MemoryStore keeps everything in process memory behind one mutex. Each method is
// atomic, which gives the same compare-and-swap semantics as the SQL store within a
// single process. Used for local runs (DB_DRIVER=memory) and tests.
type MemoryStore struct {
	mu sync.Mutex

	credits    map[uint]int
	categories map[uint]models.Category
	businesses map[uint]models.Business
	services   map[uint]models.Service
	users      map[uint]models.User
	requests   map[uint]models.BookingRequest
	offers     map[offerKey]models.Offer
	bookings   map[uint]models.Booking

	nextRequestID uint
	nextOfferID   uint
	nextBookingID uint
}

type offerKey struct {
	requestID  uint
	businessID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credits:    make(map[uint]int),
		categories: make(map[uint]models.Category),
		businesses: make(map[uint]models.Business),
		services:   make(map[uint]models.Service),
		users:      make(map[uint]models.User),
		requests:   make(map[uint]models.BookingRequest),
		offers:     make(map[offerKey]models.Offer),
		bookings:   make(map[uint]models.Booking),
	}
}

// Seeding helpers for the directory tables.

func (s *MemoryStore) PutCategory(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

func (s *MemoryStore) PutBusiness(b models.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

func (s *MemoryStore) PutService(svc models.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// CountBookings returns how many bookings reference requestID.
func (s *MemoryStore) CountBookings(requestID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.RequestID == requestID {
			n++
		}
	}
	return n
}

// CountOffers returns how many offer rows exist for requestID.
func (s *MemoryStore) CountOffers(requestID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.offers {
		if k.requestID == requestID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) ReserveCredit(_ context.Context, clientID uint) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credits[clientID] <= 0 {
		return 0, false, nil
	}
	s.credits[clientID]--
	return s.credits[clientID], true, nil
}

func (s *MemoryStore) RefundCredit(_ context.Context, clientID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credits[clientID]; ok {
		s.credits[clientID]++
	}
	return nil
}

func (s *MemoryStore) GrantCredits(_ context.Context, clientID uint, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[clientID] += amount
	return s.credits[clientID], nil
}

func (s *MemoryStore) CreditBalance(_ context.Context, clientID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits[clientID], nil
}

func (s *MemoryStore) GetCategory(_ context.Context, id uint) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) GetBusiness(_ context.Context, id uint) (*models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) GetService(_ context.Context, id uint) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &svc, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) CheapestService(_ context.Context, businessID, categoryID uint) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Service
	for _, svc := range s.services {
		if svc.BusinessID != businessID || svc.CategoryID != categoryID || !svc.Active {
			continue
		}
		if best == nil || svc.Price < best.Price || (svc.Price == best.Price && svc.ID < best.ID) {
			c := svc
			best = &c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) FindCandidates(_ context.Context, q CandidateQuery) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cheapest := make(map[uint]int64)
	for _, svc := range s.services {
		if svc.CategoryID != q.CategoryID || !svc.Active || svc.Price > q.MaxPrice {
			continue
		}
		if _, ok := s.businesses[svc.BusinessID]; !ok {
			continue
		}
		if p, ok := cheapest[svc.BusinessID]; !ok || svc.Price < p {
			cheapest[svc.BusinessID] = svc.Price
		}
	}

	out := make([]Candidate, 0, len(cheapest))
	for id, price := range cheapest {
		b := s.businesses[id]
		out = append(out, Candidate{
			BusinessID:     id,
			ReferencePrice: price,
			Latitude:       b.Latitude,
			Longitude:      b.Longitude,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReferencePrice != out[j].ReferencePrice {
			return out[i].ReferencePrice < out[j].ReferencePrice
		}
		return out[i].BusinessID < out[j].BusinessID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) IsEligible(_ context.Context, businessID, categoryID uint, maxPrice int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eligibleLocked(businessID, categoryID, maxPrice), nil
}

func (s *MemoryStore) eligibleLocked(businessID, categoryID uint, maxPrice int64) bool {
	for _, svc := range s.services {
		if svc.BusinessID == businessID && svc.CategoryID == categoryID && svc.Active && svc.Price <= maxPrice {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateRequest(_ context.Context, r *models.BookingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRequestID++
	r.ID = s.nextRequestID
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id uint) (*models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) matchesLocked(t Transition) (models.BookingRequest, bool) {
	r, ok := s.requests[t.RequestID]
	if !ok || r.Status != models.RequestStatusPending {
		return r, false
	}
	if t.ClientID != 0 && r.ClientID != t.ClientID {
		return r, false
	}
	switch t.Deadline {
	case DeadlineOpen:
		if r.ExpiresAt.Before(t.Now) {
			return r, false
		}
	case DeadlinePassed:
		if !r.ExpiresAt.Before(t.Now) {
			return r, false
		}
	}
	return r, true
}

func (s *MemoryStore) applyLocked(r models.BookingRequest, t Transition) {
	r.Status = t.To
	r.UpdatedAt = t.Now
	if t.AcceptedBy != nil {
		id := *t.AcceptedBy
		r.AcceptedBy = &id
	}
	s.requests[r.ID] = r
}

func (s *MemoryStore) TransitionRequest(_ context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.matchesLocked(t)
	if !ok {
		return false, nil
	}
	s.applyLocked(r, t)
	return true, nil
}

func (s *MemoryStore) ConfirmRequest(_ context.Context, t Transition, booking *models.Booking) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.matchesLocked(t)
	if !ok {
		return false, nil
	}
	for _, b := range s.bookings {
		if b.RequestID == booking.RequestID {
			return false, errors.Errorf("duplicate booking for request %d", booking.RequestID)
		}
	}
	s.applyLocked(r, t)
	s.nextBookingID++
	booking.ID = s.nextBookingID
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = t.Now
	}
	s.bookings[booking.ID] = *booking
	return true, nil
}

func (s *MemoryStore) ListOverdueRequests(_ context.Context, now time.Time, limit int) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var overdue []models.BookingRequest
	for _, r := range s.requests {
		if r.Status == models.RequestStatusPending && r.ExpiresAt.Before(now) {
			overdue = append(overdue, r)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].ExpiresAt.Equal(overdue[j].ExpiresAt) {
			return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt)
		}
		return overdue[i].ID < overdue[j].ID
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	ids := make([]uint, len(overdue))
	for i, r := range overdue {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *MemoryStore) ListOpenRequestsForBusiness(_ context.Context, businessID uint, now time.Time, limit int) ([]models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingRequest
	for _, r := range s.requests {
		if r.Status != models.RequestStatusPending || r.ExpiresAt.Before(now) {
			continue
		}
		if s.eligibleLocked(businessID, r.CategoryID, r.OfferedPrice) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpsertOffer(_ context.Context, requestID, businessID uint, status models.OfferStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey{requestID: requestID, businessID: businessID}
	o, ok := s.offers[key]
	if ok && o.Status == status {
		return false, nil
	}
	if !ok {
		s.nextOfferID++
		o = models.Offer{ID: s.nextOfferID, RequestID: requestID, BusinessID: businessID, CreatedAt: now}
	}
	o.Status = status
	o.UpdatedAt = now
	s.offers[key] = o
	return true, nil
}

func (s *MemoryStore) GetOffer(_ context.Context, requestID, businessID uint) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerKey{requestID: requestID, businessID: businessID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) ListOffers(_ context.Context, requestID uint, status models.OfferStatus) ([]models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Offer
	for k, o := range s.offers {
		if k.requestID != requestID || o.Status != status {
			continue
		}
		if b, ok := s.businesses[o.BusinessID]; ok {
			o.Business = &b
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].BusinessID < out[j].BusinessID
	})
	return out, nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) GetBookingByRequest(_ context.Context, requestID uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.RequestID == requestID {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListBookings(_ context.Context, clientID, businessID uint) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if clientID != 0 && b.ClientID != clientID {
			continue
		}
		if businessID != 0 && b.BusinessID != businessID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
