package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urbex/api/internal/database"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
	"github.com/stwalsh4118/urbex/api/internal/sanitize"
)

func ptr[T any](v T) *T { return &v }

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, database.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(db.Close)
	return repository.NewStore(db)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sanitized(t *testing.T, raw map[string]any) models.Record {
	t.Helper()
	res := sanitize.SanitizeAt(raw, testNow)
	require.NoError(t, sanitize.Validate(res.Record))
	return res.Record
}

func TestUpsert_EndToEndScenario(t *testing.T) {
	store := newTestStore(t)
	svc := NewUpsertService(store, logger.Nop(), WithClock(fixedClock(testNow)))
	ctx := context.Background()

	first := map[string]any{
		"address":               "123 Main St",
		"city":                  "Springfield",
		"state":                 "il",
		"tax_delinquent":        true,
		"tax_delinquency_years": 2,
	}
	res, err := svc.Upsert(ctx, sanitized(t, first), Observation{Source: "TaxAssessor", Payload: first})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 5, res.Property.AbandonmentScore)
	assert.Equal(t, "unknown", *res.Property.Status)

	second := map[string]any{
		"address":            "123 Main St",
		"city":               "Springfield",
		"state":              "IL",
		"foreclosure_status": "auction",
	}
	res, err = svc.Upsert(ctx, sanitized(t, second), Observation{Source: "Foreclosure", Payload: second})
	require.NoError(t, err)
	assert.False(t, res.Created)

	got, err := store.GetByID(ctx, res.Property.ID)
	require.NoError(t, err)
	assert.Equal(t, "IL", got.State)
	assert.Equal(t, 9, got.AbandonmentScore)
	assert.True(t, *got.TaxDelinquent)
	assert.Equal(t, "auction", *got.ForeclosureStatus)
	assert.Equal(t, models.StringList{"TaxAssessor", "Foreclosure"}, got.DataSources)

	st, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Total)

	history, err := store.History(ctx, got.ID)
	require.NoError(t, err)
	fields := map[string]models.FieldChange{}
	for _, c := range history {
		fields[c.FieldName] = c
	}
	require.Contains(t, fields, "foreclosure_status")
	assert.Nil(t, fields["foreclosure_status"].OldValue)
	assert.Equal(t, "Foreclosure", fields["foreclosure_status"].Source)
	require.Contains(t, fields, "abandonment_score")
	assert.Equal(t, "5", *fields["abandonment_score"].OldValue)
	assert.Equal(t, "9", *fields["abandonment_score"].NewValue)

	obs, err := store.Observations(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "TaxAssessor", obs[0].SourceName)
	assert.JSONEq(t, `{"address":"123 Main St","city":"Springfield","state":"IL","foreclosure_status":"auction"}`, string(obs[1].RawData))
}

func TestUpsert_Idempotent(t *testing.T) {
	store := newTestStore(t)
	clock := testNow
	svc := NewUpsertService(store, logger.Nop(), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	rec := sanitized(t, map[string]any{
		"address":   "88 River Rd",
		"city":      "Toledo",
		"state":     "OH",
		"condemned": true,
		"zip_code":  "43604",
	})

	first, err := svc.Upsert(ctx, rec, Observation{Source: "CodeEnforcement"})
	require.NoError(t, err)

	clock = testNow.Add(time.Hour)
	second, err := svc.Upsert(ctx, rec, Observation{Source: "CodeEnforcement"})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Empty(t, second.Changes)
	assert.Equal(t, first.Property.ID, second.Property.ID)

	got, err := store.GetByID(ctx, first.Property.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"CodeEnforcement"}, got.DataSources)
	assert.Equal(t, 5, got.AbandonmentScore)
	assert.Equal(t, "43604", *got.ZipCode)
	assert.True(t, testNow.Equal(got.DiscoveredAt))
	assert.True(t, clock.Equal(got.LastUpdated))

	history, err := store.History(ctx, got.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpsert_NonDestructiveMerge(t *testing.T) {
	store := newTestStore(t)
	svc := NewUpsertService(store, logger.Nop(), WithClock(fixedClock(testNow)))
	ctx := context.Background()

	_, err := svc.Upsert(ctx, sanitized(t, map[string]any{
		"address":    "5 Pine St",
		"state":      "MI",
		"owner_name": "Alice",
	}), Observation{Source: "Assessor"})
	require.NoError(t, err)

	res, err := svc.Upsert(ctx, sanitized(t, map[string]any{
		"address":            "5 Pine St",
		"state":              "MI",
		"owner_name":         nil,
		"foreclosure_status": "auction",
	}), Observation{Source: "Foreclosure"})
	require.NoError(t, err)

	assert.Equal(t, "Alice", *res.Property.OwnerName)
	assert.Equal(t, "auction", *res.Property.ForeclosureStatus)
}

func TestUpsert_LastUpdatedNeverDecreases(t *testing.T) {
	store := newTestStore(t)
	clock := testNow
	svc := NewUpsertService(store, logger.Nop(), WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	rec := sanitized(t, map[string]any{"address": "1 Clock Ln", "state": "TX"})

	_, err := svc.Upsert(ctx, rec, Observation{Source: "A"})
	require.NoError(t, err)

	clock = testNow.Add(-24 * time.Hour)
	res, err := svc.Upsert(ctx, rec, Observation{Source: "B"})
	require.NoError(t, err)

	assert.True(t, testNow.Equal(res.Property.LastUpdated))
	assert.True(t, testNow.Equal(res.Property.DiscoveredAt))
}

func TestUpsert_ExternalScoreTrusted(t *testing.T) {
	store := newTestStore(t)
	svc := NewUpsertService(store, logger.Nop(), WithClock(fixedClock(testNow)))
	ctx := context.Background()

	rec := sanitized(t, map[string]any{
		"address":           "3 Score St",
		"state":             "PA",
		"condemned":         true,
		"abandonment_score": 2,
	})
	res, err := svc.Upsert(ctx, rec, Observation{Source: "Partner"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Property.AbandonmentScore)

	// A later record with a scoring field rescores the merged entity.
	res, err = svc.Upsert(ctx, sanitized(t, map[string]any{
		"address":        "3 Score St",
		"state":          "PA",
		"has_violations": false,
	}), Observation{Source: "Other"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Property.AbandonmentScore)
}

func TestUpsert_MergeWithoutScoringFieldsKeepsScore(t *testing.T) {
	store := newTestStore(t)
	svc := NewUpsertService(store, logger.Nop(), WithClock(fixedClock(testNow)))
	ctx := context.Background()

	res, err := svc.Upsert(ctx, sanitized(t, map[string]any{
		"address":           "9 Elm St",
		"city":              "Gary",
		"state":             "IN",
		"abandonment_score": 8,
	}), Observation{Source: "Partner"})
	require.NoError(t, err)
	require.Equal(t, 8, res.Property.AbandonmentScore)

	res, err = svc.Upsert(ctx, sanitized(t, map[string]any{
		"address":    "9 Elm St",
		"city":       "Gary",
		"state":      "IN",
		"owner_name": "Bob",
	}), Observation{Source: "Assessor"})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Property.AbandonmentScore)
	for _, c := range res.Changes {
		assert.NotEqual(t, "abandonment_score", c.FieldName)
	}

	got, err := store.GetByID(ctx, res.Property.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.AbandonmentScore)
	require.NotNil(t, got.OwnerName)
	assert.Equal(t, "Bob", *got.OwnerName)
}

func TestUpsert_ConcurrentSameKeyCreatesOneProperty(t *testing.T) {
	store := newTestStore(t)
	svc := NewUpsertService(store, logger.Nop())
	ctx := context.Background()

	const workers = 16
	recs := make([]models.Record, workers)
	for i := range recs {
		recs[i] = sanitized(t, map[string]any{
			"address":         "42 Race Ave",
			"city":            "Cleveland",
			"state":           "OH",
			"violation_count": i,
		})
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Upsert(ctx, recs[i], Observation{Source: fmt.Sprintf("src-%d", i%4)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	props, err := store.List(ctx, repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Len(t, props[0].DataSources, 4)

	obs, err := store.Observations(ctx, props[0].ID)
	require.NoError(t, err)
	assert.Len(t, obs, workers)
}

func TestUpsert_RejectsInvalidInput(t *testing.T) {
	svc := NewUpsertService(newTestStore(t), logger.Nop())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, models.Record{State: ptr("IL")}, Observation{Source: "A"})
	assert.ErrorIs(t, err, sanitize.ErrMissingAddress)

	_, err = svc.Upsert(ctx, models.Record{Address: ptr("1 Main St")}, Observation{Source: "A"})
	assert.ErrorIs(t, err, sanitize.ErrMissingState)

	_, err = svc.Upsert(ctx, models.Record{Address: ptr("1 Main St"), State: ptr("IL")}, Observation{})
	assert.ErrorIs(t, err, ErrMissingSource)
}

// failingTxStore makes AppendObservation fail after the property write.
type failingTxStore struct {
	repository.Store
}

type failingTx struct {
	repository.Tx
}

var errObservation = errors.New("observation write failed")

func (s failingTxStore) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(failingTx{tx})
	})
}

func (failingTx) AppendObservation(context.Context, *models.SourceObservation) error {
	return errObservation
}

func TestUpsert_PersistenceErrorRollsBack(t *testing.T) {
	store := newTestStore(t)
	svc := NewUpsertService(failingTxStore{store}, logger.Nop())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, sanitized(t, map[string]any{"address": "7 Gone St", "state": "NY"}), Observation{Source: "A"})
	require.ErrorIs(t, err, errObservation)

	st, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Total)
}

// conflictOnceStore fails the first transaction with a unique violation, as
// if another process inserted the key first.
type conflictOnceStore struct {
	repository.Store
	mu       sync.Mutex
	attempts int
}

func (s *conflictOnceStore) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if attempt == 1 {
		return fmt.Errorf("insert lost race: %w", repository.ErrConflict)
	}
	return s.Store.WithTx(ctx, fn)
}

func TestUpsert_ConflictRetriedAsUpdate(t *testing.T) {
	base := newTestStore(t)
	// Seed the competing writer's row outside the failed attempt.
	require.NoError(t, base.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.Insert(context.Background(), &models.Property{
			Address: "9 Race St", State: "OH",
			DataSources:  models.StringList{"Other"},
			DiscoveredAt: testNow, LastUpdated: testNow,
		})
	}))

	store := &conflictOnceStore{Store: base}
	svc := NewUpsertService(store, logger.Nop(), WithClock(fixedClock(testNow)))

	res, err := svc.Upsert(context.Background(),
		sanitized(t, map[string]any{"address": "9 Race St", "state": "OH", "condemned": true}),
		Observation{Source: "Code"})
	require.NoError(t, err)

	assert.Equal(t, 2, store.attempts)
	assert.False(t, res.Created)
	assert.Equal(t, models.StringList{"Other", "Code"}, res.Property.DataSources)
	assert.Equal(t, 5, res.Property.AbandonmentScore)
}
