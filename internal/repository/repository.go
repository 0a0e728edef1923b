// Package repository persists canonical properties and their subsidiary
// records. One SQL implementation serves both PostgreSQL and SQLite through a
// small dialect layer.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/identity"
	"github.com/stwalsh4118/urbex/api/internal/models"
)

// ErrConflict is returned when a write violates a uniqueness constraint,
// such as inserting a property whose (address, city, state) already exists.
var ErrConflict = errors.New("unique constraint violation")

// ListFilter narrows List. Zero-valued fields do not filter; Limit <= 0
// returns every match.
type ListFilter struct {
	State    string
	County   string
	City     string
	Status   string
	MinScore int
	Limit    int
}

// Bounds is a latitude/longitude bounding box, inclusive on all sides.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Store is the canonical store. Reads run directly against the database;
// writes to the property table go through WithTx.
type Store interface {
	// WithTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise. fn must only use the Tx it is given.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// GetByID returns the property with id, or nil, nil when none exists.
	GetByID(ctx context.Context, id int64) (*models.Property, error)

	// List returns properties matching f, highest abandonment score first,
	// ties broken by exploration score.
	List(ctx context.Context, f ListFilter) ([]models.Property, error)

	// DemolitionWatch returns properties scheduled for demolition with a
	// demolition date in [from, to], soonest first.
	DemolitionWatch(ctx context.Context, from, to time.Time) ([]models.Property, error)

	// Search matches q case-insensitively as a substring of address, city
	// or owner name.
	Search(ctx context.Context, q string, limit int) ([]models.Property, error)

	// Statistics aggregates the whole store.
	Statistics(ctx context.Context) (*models.Statistics, error)

	// WithinBounds returns geocoded properties inside b.
	WithinBounds(ctx context.Context, b Bounds) ([]models.Property, error)

	// TaxDelinquent returns tax-delinquent properties owing at least
	// minYears, most years first.
	TaxDelinquent(ctx context.Context, minYears, limit int) ([]models.Property, error)

	// Foreclosures returns properties with a foreclosure status, earliest
	// auction first.
	Foreclosures(ctx context.Context, limit int) ([]models.Property, error)

	// MapPoints returns geocoded properties scoring at least minScore.
	MapPoints(ctx context.Context, minScore int) ([]models.Property, error)

	// MissingCoordinates returns properties lacking a latitude or longitude.
	MissingCoordinates(ctx context.Context, limit int) ([]models.Property, error)

	History(ctx context.Context, propertyID int64) ([]models.FieldChange, error)
	Observations(ctx context.Context, propertyID int64) ([]models.SourceObservation, error)
	Media(ctx context.Context, propertyID int64) ([]models.Media, error)
	Notes(ctx context.Context, propertyID int64) ([]models.Note, error)
	News(ctx context.Context, propertyID int64) ([]models.NewsMention, error)

	AddMedia(ctx context.Context, m *models.Media) error
	AddNote(ctx context.Context, n *models.Note) error
	// AddNews returns ErrConflict when the article URL is already stored.
	AddNews(ctx context.Context, n *models.NewsMention) error

	CreateRunLog(ctx context.Context, r *models.RunLog) error
	// ListRunLogs returns the most recent run logs first.
	ListRunLogs(ctx context.Context, limit int) ([]models.RunLog, error)
}

// Tx is the write side of the canonical store, scoped to one transaction.
type Tx interface {
	identity.Finder

	// Insert creates p and sets p.ID. It returns ErrConflict when the key is
	// already taken.
	Insert(ctx context.Context, p *models.Property) error

	// Update writes every mutable column of p.
	Update(ctx context.Context, p *models.Property) error

	AppendObservation(ctx context.Context, o *models.SourceObservation) error
	AppendChanges(ctx context.Context, changes []models.FieldChange) error
}
