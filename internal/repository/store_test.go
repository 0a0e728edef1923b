package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urbex/api/internal/config"
	"github.com/stwalsh4118/urbex/api/internal/database"
	"github.com/stwalsh4118/urbex/api/internal/identity"
	"github.com/stwalsh4118/urbex/api/internal/models"
)

func ptr[T any](v T) *T { return &v }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// backends returns a migrated store per available driver. SQLite always
// runs; PostgreSQL is an integration backend skipped in short mode.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	stores := map[string]Store{}

	sqlite, err := database.NewSQLite(ctx, database.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(ctx))
	t.Cleanup(sqlite.Close)
	stores[config.DriverSQLite] = NewStore(sqlite)

	if testing.Short() || os.Getenv("DB_HOST") == "" {
		return stores
	}

	pg, err := database.NewPostgresPool(ctx, config.DatabaseConfig{
		Driver:   config.DriverPostgres,
		Host:     getEnvOrDefault("DB_HOST", "host.docker.internal"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", "urbex_test"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:  1,
		PoolMax:  5,
	})
	require.NoError(t, err)
	require.NoError(t, pg.Migrate(ctx))
	_, err = pg.DB.ExecContext(ctx, "TRUNCATE properties, run_logs RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	stores[config.DriverPostgres] = NewStore(pg)

	return stores
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

var now = time.Date(2026, 10, 17, 15, 4, 5, 0, time.UTC)

func newProperty(address, city, state string) *models.Property {
	return &models.Property{
		Address:      address,
		City:         city,
		State:        state,
		DataSources:  models.StringList{"TaxAssessor"},
		DiscoveredAt: now,
		LastUpdated:  now,
	}
}

func insert(t *testing.T, s Store, props ...*models.Property) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx Tx) error {
		for _, p := range props {
			if err := tx.Insert(context.Background(), p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStore_InsertAndFind(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		p := newProperty("123 Main St", "Springfield", "IL")
		p.OwnerName = ptr("Alice")
		p.Latitude = ptr(39.78)
		p.Longitude = ptr(-89.65)
		p.TaxDelinquent = ptr(true)
		p.TaxDelinquencyYears = ptr(2)
		p.LastSaleDate = ptr(time.Date(2012, 4, 1, 0, 0, 0, 0, time.UTC))
		p.Hazards = models.StringList{"asbestos"}
		p.AbandonmentScore = 5
		insert(t, s, p)
		require.NotZero(t, p.ID)

		got, err := s.GetByID(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Alice", *got.OwnerName)
		assert.Equal(t, 39.78, *got.Latitude)
		assert.True(t, *got.TaxDelinquent)
		assert.Equal(t, 2, *got.TaxDelinquencyYears)
		assert.True(t, p.LastSaleDate.Equal(*got.LastSaleDate))
		assert.Equal(t, models.StringList{"asbestos"}, got.Hazards)
		assert.Equal(t, models.StringList{"TaxAssessor"}, got.DataSources)
		assert.True(t, now.Equal(got.DiscoveredAt))
		assert.Nil(t, got.County)
		assert.Nil(t, got.ForeclosureStatus)

		err = s.WithTx(ctx, func(tx Tx) error {
			found, err := tx.FindByKey(ctx, identity.Key{Address: "123 Main St", City: "Springfield", State: "IL"})
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, p.ID, found.ID)

			missing, err := tx.FindByKey(ctx, identity.Key{Address: "123 Main St", State: "IL"})
			require.NoError(t, err)
			assert.Nil(t, missing)
			return nil
		})
		require.NoError(t, err)

		none, err := s.GetByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, none)
	})
}

func TestStore_InsertDuplicateKeyConflicts(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		insert(t, s, newProperty("1 Elm St", "Dayton", "OH"))

		err := s.WithTx(context.Background(), func(tx Tx) error {
			return tx.Insert(context.Background(), newProperty("1 Elm St", "Dayton", "OH"))
		})
		assert.ErrorIs(t, err, ErrConflict)

		// Same address without a city is a different property.
		insert(t, s, newProperty("1 Elm St", "", "OH"))
	})
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(tx Tx) error {
			if err := tx.Insert(ctx, newProperty("9 Oak Ave", "Gary", "IN")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		st, err := s.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), st.Total)
	})
}

func TestStore_UpdateAndHistory(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := newProperty("77 Lake Rd", "Flint", "MI")
		p.OwnerName = ptr("Alice")
		insert(t, s, p)

		later := now.Add(time.Hour)
		err := s.WithTx(ctx, func(tx Tx) error {
			p.ForeclosureStatus = ptr("auction")
			p.DataSources.Append("Foreclosure")
			p.LastUpdated = later
			p.AbandonmentScore = 4
			if err := tx.Update(ctx, p); err != nil {
				return err
			}
			if err := tx.AppendChanges(ctx, []models.FieldChange{{
				PropertyID: p.ID, FieldName: "foreclosure_status", NewValue: ptr("auction"),
				ChangedAt: later, Source: "Foreclosure",
			}}); err != nil {
				return err
			}
			return tx.AppendObservation(ctx, &models.SourceObservation{
				PropertyID: p.ID, SourceName: "Foreclosure", ObservedAt: later,
				RawData: json.RawMessage(`{"foreclosure_status":"auction"}`),
			})
		})
		require.NoError(t, err)

		got, err := s.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", *got.OwnerName)
		assert.Equal(t, "auction", *got.ForeclosureStatus)
		assert.Equal(t, models.StringList{"TaxAssessor", "Foreclosure"}, got.DataSources)
		assert.True(t, later.Equal(got.LastUpdated))
		assert.True(t, now.Equal(got.DiscoveredAt))

		history, err := s.History(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Nil(t, history[0].OldValue)
		assert.Equal(t, "auction", *history[0].NewValue)

		obs, err := s.Observations(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.JSONEq(t, `{"foreclosure_status":"auction"}`, string(obs[0].RawData))
	})
}

func TestStore_ListFiltersAndOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a := newProperty("1 A St", "Detroit", "MI")
		a.AbandonmentScore = 5
		a.ExplorationScore = ptr(2)
		a.County = ptr("Wayne")
		b := newProperty("2 B St", "Detroit", "MI")
		b.AbandonmentScore = 5
		b.ExplorationScore = ptr(8)
		b.County = ptr("Wayne")
		b.Status = ptr("abandoned")
		c := newProperty("3 C St", "Gary", "IN")
		c.AbandonmentScore = 9
		insert(t, s, a, b, c)

		all, err := s.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

		mi, err := s.List(ctx, ListFilter{State: "mi", County: "Wayne", City: "Detroit"})
		require.NoError(t, err)
		assert.Len(t, mi, 2)

		abandoned, err := s.List(ctx, ListFilter{Status: "abandoned"})
		require.NoError(t, err)
		require.Len(t, abandoned, 1)
		assert.Equal(t, b.ID, abandoned[0].ID)

		high, err := s.List(ctx, ListFilter{MinScore: 6})
		require.NoError(t, err)
		require.Len(t, high, 1)
		assert.Equal(t, c.ID, high[0].ID)

		limited, err := s.List(ctx, ListFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		none, err := s.List(ctx, ListFilter{State: "TX"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}

func TestStore_DemolitionWatch(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		today := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

		mk := func(addr string, scheduled bool, offsetDays int) *models.Property {
			p := newProperty(addr, "Camden", "NJ")
			p.DemolitionScheduled = ptr(scheduled)
			p.DemolitionDate = ptr(today.AddDate(0, 0, offsetDays))
			return p
		}
		soon := mk("10 Soon St", true, 3)
		sooner := mk("11 Sooner St", true, 0)
		late := mk("12 Late St", true, 45)
		past := mk("13 Past St", true, -1)
		unscheduled := mk("14 Maybe St", false, 2)
		insert(t, s, soon, sooner, late, past, unscheduled)

		got, err := s.DemolitionWatch(ctx, today, today.AddDate(0, 0, 30))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, sooner.ID, got[0].ID)
		assert.Equal(t, soon.ID, got[1].ID)
	})
}

func TestStore_Search(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := newProperty("450 Maple Ave", "Springfield", "IL")
		b := newProperty("12 Birch Rd", "Rockford", "IL")
		b.OwnerName = ptr("MAPLE HOLDINGS LLC")
		c := newProperty("9 100% Way", "Peoria", "IL")
		insert(t, s, a, b, c)

		got, err := s.Search(ctx, "maple", 0)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.Search(ctx, "ROCKF", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.ID, got[0].ID)

		got, err = s.Search(ctx, "0%", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, c.ID, got[0].ID)

		got, err = s.Search(ctx, "zzz", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStore_Statistics(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a := newProperty("1 A St", "Akron", "OH")
		a.Status = ptr("abandoned")
		a.AbandonmentScore = 7
		a.TaxDelinquent = ptr(true)
		b := newProperty("2 B St", "Akron", "OH")
		b.ForeclosureStatus = ptr("auction")
		b.AbandonmentScore = 4
		b.TaxDelinquent = ptr(false)
		c := newProperty("3 C St", "Akron", "OH")
		c.AbandonmentScore = 10
		insert(t, s, a, b, c)

		st, err := s.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Statistics{Total: 3, Abandoned: 1, Foreclosed: 1, TaxDelinquent: 1, HighScore: 2}, *st)
	})
}

func TestStore_SpecializedQueries(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a := newProperty("1 A St", "Toledo", "OH")
		a.TaxDelinquent = ptr(true)
		a.TaxDelinquencyYears = ptr(3)
		a.Latitude, a.Longitude = ptr(41.65), ptr(-83.54)
		a.AbandonmentScore = 8
		b := newProperty("2 B St", "Toledo", "OH")
		b.TaxDelinquent = ptr(true)
		b.TaxDelinquencyYears = ptr(1)
		b.ForeclosureStatus = ptr("pending")
		b.AuctionDate = ptr(time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC))
		c := newProperty("3 C St", "Toledo", "OH")
		c.ForeclosureStatus = ptr("auction")
		c.Latitude, c.Longitude = ptr(41.70), ptr(-83.60)
		c.AbandonmentScore = 4
		insert(t, s, a, b, c)

		tax, err := s.TaxDelinquent(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, tax, 1)
		assert.Equal(t, a.ID, tax[0].ID)

		tax, err = s.TaxDelinquent(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, tax, 2)

		fc, err := s.Foreclosures(ctx, 0)
		require.NoError(t, err)
		require.Len(t, fc, 2)
		assert.Equal(t, b.ID, fc[0].ID, "dated auctions first")

		points, err := s.MapPoints(ctx, 5)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, a.ID, points[0].ID)

		missing, err := s.MissingCoordinates(ctx, 10)
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, b.ID, missing[0].ID)

		box, err := s.WithinBounds(ctx, Bounds{MinLat: 41.6, MaxLat: 41.68, MinLng: -83.6, MaxLng: -83.5})
		require.NoError(t, err)
		require.Len(t, box, 1)
		assert.Equal(t, a.ID, box[0].ID)
	})
}

func TestStore_SubsidiaryRecords(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := newProperty("5 Mill St", "Lowell", "MA")
		insert(t, s, p)

		note := &models.Note{PropertyID: p.ID, Text: "Side door open", Priority: 2, CreatedDate: now}
		require.NoError(t, s.AddNote(ctx, note))
		assert.NotZero(t, note.ID)

		notes, err := s.Notes(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Side door open", notes[0].Text)
		assert.Equal(t, models.StringList{}, notes[0].Tags)
		assert.False(t, notes[0].Visited)

		m := &models.Media{PropertyID: p.ID, MediaType: "photo", URL: ptr("https://img.example/1.jpg"), UploadedDate: now}
		require.NoError(t, s.AddMedia(ctx, m))
		media, err := s.Media(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, media, 1)
		assert.Equal(t, "photo", media[0].MediaType)

		news := &models.NewsMention{PropertyID: p.ID, Title: "Mill to be razed", URL: "https://news.example/mill"}
		require.NoError(t, s.AddNews(ctx, news))
		dup := &models.NewsMention{PropertyID: p.ID, Title: "Again", URL: "https://news.example/mill"}
		assert.ErrorIs(t, s.AddNews(ctx, dup), ErrConflict)

		mentions, err := s.News(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, mentions, 1)
	})
}

func TestStore_RunLogs(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		first := &models.RunLog{RunID: "r1", SourceName: "TaxAssessor", Status: models.RunStatusSuccess,
			Found: 10, Added: 8, Updated: 2, StartedAt: now, DurationSeconds: 1.5}
		second := &models.RunLog{RunID: "r2", SourceName: "Foreclosure", Status: models.RunStatusFailure,
			ErrorText: ptr("timeout"), StartedAt: now.Add(time.Minute)}
		require.NoError(t, s.CreateRunLog(ctx, first))
		require.NoError(t, s.CreateRunLog(ctx, second))

		logs, err := s.ListRunLogs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "r2", logs[0].RunID)
		assert.Equal(t, "timeout", *logs[0].ErrorText)
		assert.Equal(t, 8, logs[1].Added)

		logs, err = s.ListRunLogs(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%main st%", likePattern("Main St"))
	assert.Equal(t, `%100\%\_a\\b%`, likePattern(`100%_a\b`))
}

func TestSQLiteRebind(t *testing.T) {
	assert.Equal(t, "a = ?1 AND b = ?12", sqliteDialect.rebind("a = $1 AND b = $12"))
	assert.Equal(t, "a = $1", postgresDialect.rebind("a = $1"))
}

func TestUpdateStatementSkipsImmutableColumns(t *testing.T) {
	p := newProperty("1 A St", "X", "OH")
	p.ID = 42
	query, args := updateStatement(p)

	assert.NotContains(t, query, "SET address =")
	assert.NotContains(t, query, ", address =")
	assert.Contains(t, query, "formatted_address =")
	assert.NotContains(t, query, "discovered_at =")
	assert.Contains(t, query, "last_updated =")
	assert.Equal(t, int64(42), args[len(args)-1])
}
