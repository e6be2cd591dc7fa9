// Package ticketing creates follow-up tickets (escalations, defects)
// after an analysis completes. Creation is fire-and-forget with
// reporting: every attempt produces a TicketResult and a failed attempt
// is never retried.
package ticketing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/metrics"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Service dispatches ticket requests to the configured tracker. driver
// may be nil when no tracker is configured; every request then fails
// with a result explaining why.
type Service struct {
	driver  contracts.TicketDriver
	metrics *metrics.Metrics
}

// NewService builds the ticketing service. Both arguments may be nil.
func NewService(driver contracts.TicketDriver, m *metrics.Metrics) *Service {
	return &Service{driver: driver, metrics: m}
}

// CreateTickets creates every requested ticket and reports per-ticket
// results in request order.
func (s *Service) CreateTickets(ctx context.Context, reqs []models.TicketRequest) []models.TicketResult {
	if len(reqs) == 0 {
		return nil
	}

	results := make([]models.TicketResult, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int, req models.TicketRequest) {
			defer wg.Done()
			results[i] = s.createOne(ctx, &req)
		}(i, reqs[i])
	}
	wg.Wait()

	return results
}

func (s *Service) createOne(ctx context.Context, req *models.TicketRequest) models.TicketResult {
	result := models.TicketResult{
		Kind:      req.Kind,
		Timestamp: time.Now().UTC(),
	}

	if s.driver == nil {
		result.Error = "no ticket tracker configured"
		s.metrics.CountTicket(string(req.Kind), "error")
		return result
	}

	key, err := s.driver.Create(ctx, req)
	if err != nil {
		cerr := models.NewClassifiedError(models.ErrKindTicketing, s.driver.Name(), err)
		log.Warn().Err(cerr).
			Str("tracker", s.driver.Name()).
			Str("kind", string(req.Kind)).
			Msg("Ticket creation failed")
		result.Error = cerr.Error()
		s.metrics.CountTicket(string(req.Kind), "error")
		return result
	}

	log.Info().
		Str("tracker", s.driver.Name()).
		Str("kind", string(req.Kind)).
		Str("key", key).
		Msg("Ticket created")
	result.Key = key
	result.Success = true
	s.metrics.CountTicket(string(req.Kind), "success")
	return result
}

var _ contracts.TicketingService = (*Service)(nil)
