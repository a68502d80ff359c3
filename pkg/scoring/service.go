package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jordanlanch/salespilot/pkg/cache"
	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
)

// Component names, recorded in the persisted breakdown for explainability.
const (
	ComponentRecency      = "engagement_recency"
	ComponentInteractions = "interaction_volume"
	ComponentSource       = "source_quality"
	ComponentFit          = "firmographic_fit"
	ComponentOpenDeal     = "open_deal"
)

// Component weights. They must sum to 1.0 so the composite stays in
// [0, 100] without rescaling.
const (
	WeightRecency      = 0.25
	WeightInteractions = 0.20
	WeightSource       = 0.20
	WeightFit          = 0.20
	WeightOpenDeal     = 0.15
)

// Recency decays exponentially: full marks for engagement today, roughly a
// third left after a month of silence.
const recencyDecayDays = 30.0

// Points per recorded interaction, capped at 100.
const interactionPoints = 10

// Source quality lookup. Unknown sources get the neutral default rather
// than zero so a missing value does not tank the composite.
var sourceQuality = map[string]int{
	"referral":       100,
	"website":        70,
	"event":          60,
	"purchased_list": 25,
}

const sourceQualityDefault = 40

// Score computes the composite quality score for a contact from its
// signals. It is a pure function: identical inputs, including now, always
// produce the identical (score, components) pair. Each component is
// bounded to [0, 100] and the weighted composite is clamped and rounded.
func Score(contact *domain.Contact, sig *domain.Signals, now time.Time) (int, map[string]int) {
	components := make(map[string]int, 5)

	recency := 0
	if sig.LastEngagedAt != nil {
		days := now.Sub(*sig.LastEngagedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		recency = int(math.Round(100 * math.Exp(-days/recencyDecayDays)))
	}
	components[ComponentRecency] = clamp(recency)

	components[ComponentInteractions] = clamp(sig.InteractionCount * interactionPoints)

	source := sig.Source
	if source == "" {
		source = contact.Source
	}
	quality, ok := sourceQuality[source]
	if !ok {
		quality = sourceQualityDefault
	}
	components[ComponentSource] = quality

	components[ComponentFit] = clamp(int(math.Round(sig.IndustryFit * 100)))

	if sig.HasOpenDeal {
		components[ComponentOpenDeal] = 100
	} else {
		components[ComponentOpenDeal] = 0
	}

	composite := WeightRecency*float64(components[ComponentRecency]) +
		WeightInteractions*float64(components[ComponentInteractions]) +
		WeightSource*float64(components[ComponentSource]) +
		WeightFit*float64(components[ComponentFit]) +
		WeightOpenDeal*float64(components[ComponentOpenDeal])

	return clamp(int(math.Round(composite))), components
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Service handles lead scoring operations.
type Service struct {
	contacts         domain.ContactRepository
	signals          domain.SignalSource
	cache            *cache.Client
	clock            domain.Clock
	log              logger.Logger
	batchConcurrency int
}

// NewService creates a new lead scoring service. The cache client may be
// nil, in which case score reads always hit the store.
func NewService(contacts domain.ContactRepository, signals domain.SignalSource, cacheClient *cache.Client, clock domain.Clock, log logger.Logger, batchConcurrency int) *Service {
	if batchConcurrency <= 0 {
		batchConcurrency = 8
	}
	return &Service{
		contacts:         contacts,
		signals:          signals,
		cache:            cacheClient,
		clock:            clock,
		log:              log,
		batchConcurrency: batchConcurrency,
	}
}

// ScoreResult represents a contact's calculated score.
type ScoreResult struct {
	ContactID   int            `json:"contact_id"`
	ContactName string         `json:"contact_name"`
	Score       int            `json:"score"`
	Components  map[string]int `json:"components"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BatchItem is the outcome for one contact in a batch recompute.
type BatchItem struct {
	ContactID int    `json:"contact_id"`
	Score     int    `json:"score,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchResult reports a batch recompute. Partial success is a first-class
// result, not an error.
type BatchResult struct {
	Total  int         `json:"total"`
	Scored int         `json:"scored"`
	Failed int         `json:"failed"`
	Items  []BatchItem `json:"items"`
}

// RecomputeOne recalculates and persists the score for a single contact.
// When the signal source is unavailable the stored score is left untouched
// and a COMPUTATION_ERROR is returned.
func (s *Service) RecomputeOne(ctx context.Context, tenantID, contactID int) (*ScoreResult, error) {
	contact, err := s.contacts.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	sig, err := s.signals.Signals(ctx, tenantID, contactID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, domain.NewComputationError("scoring signals unavailable", err)
	}

	now := s.clock.Now()
	score, components := Score(contact, sig, now)

	if err := s.contacts.UpdateScore(ctx, tenantID, contactID, score, components, now); err != nil {
		return nil, fmt.Errorf("failed to persist score: %w", err)
	}

	result := &ScoreResult{
		ContactID:   contact.ID,
		ContactName: contact.Name,
		Score:       score,
		Components:  components,
		UpdatedAt:   now,
	}
	s.cacheResult(ctx, tenantID, result)
	return result, nil
}

// GetScore returns the stored score for a contact, serving from cache when
// possible.
func (s *Service) GetScore(ctx context.Context, tenantID, contactID int) (*ScoreResult, error) {
	key := scoreKey(tenantID, contactID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var result ScoreResult
			if err := json.Unmarshal([]byte(raw), &result); err == nil {
				return &result, nil
			}
		} else if !cache.IsMiss(err) {
			s.log.Warn("score cache read failed", "error", err)
		}
	}

	contact, err := s.contacts.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	if contact.Score == nil || contact.ScoreUpdatedAt == nil {
		return nil, domain.NewNotFoundError("score")
	}

	result := &ScoreResult{
		ContactID:   contact.ID,
		ContactName: contact.Name,
		Score:       *contact.Score,
		Components:  contact.ScoreComponents,
		UpdatedAt:   *contact.ScoreUpdatedAt,
	}
	s.cacheResult(ctx, tenantID, result)
	return result, nil
}

// RecomputeBatch rescores every lead of the tenant with bounded
// concurrency. One failing lead never aborts the batch; failures are
// logged and reported per item.
func (s *Service) RecomputeBatch(ctx context.Context, tenantID int) (*BatchResult, error) {
	leads, err := s.contacts.ListLeads(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	result := &BatchResult{
		Total: len(leads),
		Items: make([]BatchItem, len(leads)),
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, s.batchConcurrency)
	)

	for i, lead := range leads {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, lead *domain.Contact) {
			defer wg.Done()
			defer func() { <-sem }()

			item := BatchItem{ContactID: lead.ID}
			scored, err := s.RecomputeOne(ctx, tenantID, lead.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("batch rescore failed for contact",
					"tenant_id", tenantID, "contact_id", lead.ID, "error", err)
				item.Error = domain.GetErrorCode(err)
				result.Failed++
			} else {
				item.Score = scored.Score
				result.Scored++
			}
			result.Items[i] = item
		}(i, lead)
	}
	wg.Wait()

	return result, nil
}

func (s *Service) cacheResult(ctx context.Context, tenantID int, result *ScoreResult) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, scoreKey(tenantID, result.ContactID), encoded, time.Hour); err != nil {
		s.log.Warn("score cache write failed", "error", err)
	}
}

func scoreKey(tenantID, contactID int) string {
	return fmt.Sprintf("score:%d:%d", tenantID, contactID)
}
