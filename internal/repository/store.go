package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stwalsh4118/urbex/api/internal/database"
	"github.com/stwalsh4118/urbex/api/internal/identity"
	"github.com/stwalsh4118/urbex/api/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlStore is the database/sql implementation of Store.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

// NewStore creates a Store over db, choosing the SQL dialect from its driver.
func NewStore(db *database.Database) Store {
	return &sqlStore{
		db: db.DB,
		d:  dialectFor(db.Driver),
	}
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, d: s.d}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", s.d.translate(err))
	}
	committed = true
	return nil
}

// sqlTx implements Tx on an open transaction.
type sqlTx struct {
	tx *sql.Tx
	d  dialect
}

func (t *sqlTx) FindByKey(ctx context.Context, key identity.Key) (*models.Property, error) {
	query := propertySelect + " WHERE address = $1 AND city = $2 AND state = $3" + t.d.forUpdate
	p, err := queryProperty(ctx, t.tx, t.d, query, key.Address, key.City, key.State)
	if err != nil {
		return nil, fmt.Errorf("failed to find property %s: %w", key, err)
	}
	return p, nil
}

func (t *sqlTx) Insert(ctx context.Context, p *models.Property) error {
	query, args := insertStatement(p)
	if err := t.tx.QueryRowContext(ctx, t.d.rebind(query), args...).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to insert property %s: %w", identity.KeyOfProperty(p), t.d.translate(err))
	}
	return nil
}

func (t *sqlTx) Update(ctx context.Context, p *models.Property) error {
	query, args := updateStatement(p)
	res, err := t.tx.ExecContext(ctx, t.d.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update property %d: %w", p.ID, t.d.translate(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update property %d: %w", p.ID, sql.ErrNoRows)
	}
	return nil
}

func (t *sqlTx) AppendObservation(ctx context.Context, o *models.SourceObservation) error {
	var raw *string
	if len(o.RawData) > 0 {
		s := string(o.RawData)
		raw = &s
	}
	query := `INSERT INTO source_observations (property_id, source_name, source_url, observed_at, raw_data)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := t.tx.QueryRowContext(ctx, t.d.rebind(query),
		o.PropertyID, o.SourceName, o.SourceURL, o.ObservedAt, raw).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to record observation for property %d: %w", o.PropertyID, err)
	}
	return nil
}

func (t *sqlTx) AppendChanges(ctx context.Context, changes []models.FieldChange) error {
	query := t.d.rebind(`INSERT INTO field_changes (property_id, field_name, old_value, new_value, changed_at, source)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`)
	for i := range changes {
		c := &changes[i]
		err := t.tx.QueryRowContext(ctx, query,
			c.PropertyID, c.FieldName, c.OldValue, c.NewValue, c.ChangedAt, c.Source).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to record change of %s on property %d: %w", c.FieldName, c.PropertyID, err)
		}
	}
	return nil
}

// queryProperty returns the single property query selects, or nil when no
// row matches.
func queryProperty(ctx context.Context, q querier, d dialect, query string, args ...any) (*models.Property, error) {
	var p models.Property
	err := q.QueryRowContext(ctx, d.rebind(query), args...).Scan(scanTargets(propertyColumns(&p))...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// queryProperties collects every row query selects. The result is never nil.
func queryProperties(ctx context.Context, q querier, d dialect, query string, args ...any) ([]models.Property, error) {
	rows, err := q.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := []models.Property{}
	for rows.Next() {
		var p models.Property
		if err := rows.Scan(scanTargets(propertyColumns(&p))...); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}
