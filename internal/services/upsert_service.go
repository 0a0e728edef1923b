package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/identity"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/metrics"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
	"github.com/stwalsh4118/urbex/api/internal/sanitize"
	"github.com/stwalsh4118/urbex/api/internal/scoring"
)

// ErrMissingSource is returned when an observation names no source.
var ErrMissingSource = errors.New("observation has no source name")

// Observation describes where a record came from.
type Observation struct {
	Source    string
	SourceURL string
	// Payload is the raw record as the source produced it. It is stored as
	// JSON alongside the observation.
	Payload any
}

// UpsertResult reports what an upsert did to the canonical store.
type UpsertResult struct {
	Property *models.Property
	Created  bool
	Changes  []models.FieldChange
}

// UpsertService merges sanitized records into canonical properties.
type UpsertService struct {
	store    repository.Store
	resolver *identity.Resolver
	locker   *identity.Locker
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// UpsertOption customizes an UpsertService.
type UpsertOption func(*UpsertService)

// WithClock replaces the wall clock used for timestamps and scoring.
func WithClock(now func() time.Time) UpsertOption {
	return func(s *UpsertService) { s.now = now }
}

// WithMetrics records upsert latency on m.
func WithMetrics(m *metrics.Metrics) UpsertOption {
	return func(s *UpsertService) { s.metrics = m }
}

// NewUpsertService creates an UpsertService writing to store.
func NewUpsertService(store repository.Store, log *logger.Logger, opts ...UpsertOption) *UpsertService {
	s := &UpsertService{
		store:    store,
		resolver: identity.NewResolver(),
		locker:   identity.NewLocker(identity.DefaultStripes),
		log:      log.WithComponent("upsert"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates or merges the property rec describes. The whole write,
// including provenance, history and the observation, happens in one
// transaction; on error nothing is persisted.
func (s *UpsertService) Upsert(ctx context.Context, rec models.Record, obs Observation) (*UpsertResult, error) {
	if err := sanitize.Validate(rec); err != nil {
		return nil, err
	}
	if obs.Source == "" {
		return nil, ErrMissingSource
	}

	key := identity.KeyOf(rec)
	unlock := s.locker.Lock(key)
	defer unlock()

	start := time.Now()
	defer func() { s.metrics.ObserveUpsert(time.Since(start)) }()

	result, err := s.upsertOnce(ctx, key, rec, obs)
	if errors.Is(err, repository.ErrConflict) {
		// Another writer created the property between lookup and insert.
		s.log.Debug("Insert raced another writer, retrying as update", map[string]interface{}{
			"key":    key.String(),
			"source": obs.Source,
		})
		result, err = s.upsertOnce(ctx, key, rec, obs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	return result, nil
}

func (s *UpsertService) upsertOnce(ctx context.Context, key identity.Key, rec models.Record, obs Observation) (*UpsertResult, error) {
	now := s.now().UTC()
	var result *UpsertResult

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		existing, err := s.resolver.Resolve(ctx, tx, key)
		if err != nil {
			return err
		}

		if existing == nil {
			p := newProperty(key, rec, obs.Source, now)
			p.AbandonmentScore = scoreFor(p, rec, now, false)
			if err := tx.Insert(ctx, p); err != nil {
				return err
			}
			result = &UpsertResult{Property: p, Created: true}
		} else {
			changes := applyRecord(existing, rec, obs.Source, now)
			if score := scoreFor(existing, rec, now, true); score != existing.AbandonmentScore {
				changes = append(changes, models.FieldChange{
					PropertyID: existing.ID,
					FieldName:  "abandonment_score",
					OldValue:   formatPtr(&existing.AbandonmentScore),
					NewValue:   formatPtr(&score),
					ChangedAt:  now,
					Source:     obs.Source,
				})
				existing.AbandonmentScore = score
			}
			if err := tx.Update(ctx, existing); err != nil {
				return err
			}
			if err := tx.AppendChanges(ctx, changes); err != nil {
				return err
			}
			result = &UpsertResult{Property: existing, Changes: changes}
		}

		return tx.AppendObservation(ctx, s.observation(result.Property.ID, obs, now))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scoreFor trusts an externally supplied score and otherwise scores the
// merged entity. On a merge, a record without scoring fields keeps the
// stored score, which may itself have been supplied externally.
func scoreFor(p *models.Property, rec models.Record, now time.Time, merge bool) int {
	if rec.AbandonmentScore != nil {
		return scoring.Clamp(*rec.AbandonmentScore)
	}
	if merge && !scoring.Relevant(rec) {
		return p.AbandonmentScore
	}
	return scoring.Score(scoring.ToRecord(p), now)
}

func (s *UpsertService) observation(propertyID int64, obs Observation, now time.Time) *models.SourceObservation {
	o := &models.SourceObservation{
		PropertyID: propertyID,
		SourceName: obs.Source,
		ObservedAt: now,
	}
	if obs.SourceURL != "" {
		url := obs.SourceURL
		o.SourceURL = &url
	}
	if obs.Payload != nil {
		raw, err := json.Marshal(obs.Payload)
		if err != nil {
			s.log.Warn("Dropping unencodable observation payload", map[string]interface{}{
				"source": obs.Source,
				"error":  err.Error(),
			})
		} else {
			o.RawData = raw
		}
	}
	return o
}
