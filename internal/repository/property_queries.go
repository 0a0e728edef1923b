package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

const scoreOrder = " ORDER BY abandonment_score DESC, COALESCE(exploration_score, 0) DESC, id ASC"

// limitClause appends a LIMIT placeholder when limit is positive.
func limitClause(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit)
	return fmt.Sprintf("%s LIMIT $%d", query, len(args)), args
}

func (s *sqlStore) GetByID(ctx context.Context, id int64) (*models.Property, error) {
	p, err := queryProperty(ctx, s.db, s.d, propertySelect+" WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get property %d: %w", id, err)
	}
	return p, nil
}

func (s *sqlStore) List(ctx context.Context, f ListFilter) ([]models.Property, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.State != "" {
		add("state = $%d", strings.ToUpper(f.State))
	}
	if f.County != "" {
		add("county = $%d", f.County)
	}
	if f.City != "" {
		add("city = $%d", f.City)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.MinScore > 0 {
		add("abandonment_score >= $%d", f.MinScore)
	}

	query := propertySelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query, args = limitClause(query+scoreOrder, args, f.Limit)

	props, err := queryProperties(ctx, s.db, s.d, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, nil
}

func (s *sqlStore) DemolitionWatch(ctx context.Context, from, to time.Time) ([]models.Property, error) {
	query := propertySelect + `
		WHERE demolition_scheduled = TRUE
		  AND demolition_date >= $1 AND demolition_date <= $2
		ORDER BY demolition_date ASC, id ASC`
	props, err := queryProperties(ctx, s.db, s.d, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query demolition watch: %w", err)
	}
	return props, nil
}

// likePattern builds a case-folded substring pattern with LIKE wildcards in
// q escaped.
func likePattern(q string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(q))
	return "%" + escaped + "%"
}

func (s *sqlStore) Search(ctx context.Context, q string, limit int) ([]models.Property, error) {
	query := propertySelect + `
		WHERE LOWER(address) LIKE $1 ESCAPE '\'
		   OR LOWER(city) LIKE $1 ESCAPE '\'
		   OR LOWER(COALESCE(owner_name, '')) LIKE $1 ESCAPE '\'` + scoreOrder
	query, args := limitClause(query, []any{likePattern(q)}, limit)

	props, err := queryProperties(ctx, s.db, s.d, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties for %q: %w", q, err)
	}
	return props, nil
}

func (s *sqlStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'abandoned' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN foreclosure_status IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tax_delinquent = TRUE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN abandonment_score >= $1 THEN 1 ELSE 0 END), 0)
		FROM properties`

	var st models.Statistics
	err := s.db.QueryRowContext(ctx, s.d.rebind(query), models.HighScoreThreshold).Scan(
		&st.Total,
		&st.Abandoned,
		&st.Foreclosed,
		&st.TaxDelinquent,
		&st.HighScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}
	return &st, nil
}

func (s *sqlStore) WithinBounds(ctx context.Context, b Bounds) ([]models.Property, error) {
	query := propertySelect + `
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4` + scoreOrder
	props, err := queryProperties(ctx, s.db, s.d, query, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties within bounds: %w", err)
	}
	return props, nil
}

func (s *sqlStore) TaxDelinquent(ctx context.Context, minYears, limit int) ([]models.Property, error) {
	query := propertySelect + `
		WHERE tax_delinquent = TRUE AND COALESCE(tax_delinquency_years, 0) >= $1
		ORDER BY COALESCE(tax_delinquency_years, 0) DESC, abandonment_score DESC, id ASC`
	query, args := limitClause(query, []any{minYears}, limit)

	props, err := queryProperties(ctx, s.db, s.d, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax delinquent properties: %w", err)
	}
	return props, nil
}

func (s *sqlStore) Foreclosures(ctx context.Context, limit int) ([]models.Property, error) {
	query := propertySelect + `
		WHERE foreclosure_status IS NOT NULL
		ORDER BY CASE WHEN auction_date IS NULL THEN 1 ELSE 0 END, auction_date ASC, id ASC`
	query, args := limitClause(query, nil, limit)

	props, err := queryProperties(ctx, s.db, s.d, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreclosures: %w", err)
	}
	return props, nil
}

func (s *sqlStore) MapPoints(ctx context.Context, minScore int) ([]models.Property, error) {
	query := propertySelect + `
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		  AND abandonment_score >= $1` + scoreOrder
	props, err := queryProperties(ctx, s.db, s.d, query, minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to query map points: %w", err)
	}
	return props, nil
}

func (s *sqlStore) MissingCoordinates(ctx context.Context, limit int) ([]models.Property, error) {
	query := propertySelect + " WHERE latitude IS NULL OR longitude IS NULL" + scoreOrder
	query, args := limitClause(query, nil, limit)

	props, err := queryProperties(ctx, s.db, s.d, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties missing coordinates: %w", err)
	}
	return props, nil
}
