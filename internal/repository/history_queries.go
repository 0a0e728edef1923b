package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

func (s *sqlStore) History(ctx context.Context, propertyID int64) ([]models.FieldChange, error) {
	query := `SELECT id, property_id, field_name, old_value, new_value, changed_at, source
		FROM field_changes WHERE property_id = $1 ORDER BY changed_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history of property %d: %w", propertyID, err)
	}
	defer rows.Close()

	changes := []models.FieldChange{}
	for rows.Next() {
		var c models.FieldChange
		if err := rows.Scan(&c.ID, &c.PropertyID, &c.FieldName, &c.OldValue, &c.NewValue, &c.ChangedAt, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan field change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *sqlStore) Observations(ctx context.Context, propertyID int64) ([]models.SourceObservation, error) {
	query := `SELECT id, property_id, source_name, source_url, observed_at, raw_data
		FROM source_observations WHERE property_id = $1 ORDER BY observed_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations of property %d: %w", propertyID, err)
	}
	defer rows.Close()

	observations := []models.SourceObservation{}
	for rows.Next() {
		var (
			o   models.SourceObservation
			raw sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.PropertyID, &o.SourceName, &o.SourceURL, &o.ObservedAt, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if raw.Valid {
			o.RawData = json.RawMessage(raw.String)
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (s *sqlStore) Media(ctx context.Context, propertyID int64) ([]models.Media, error) {
	query := `SELECT id, property_id, media_type, url, local_path, caption, date_taken, uploaded_by, uploaded_date
		FROM media WHERE property_id = $1 ORDER BY uploaded_date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query media of property %d: %w", propertyID, err)
	}
	defer rows.Close()

	media := []models.Media{}
	for rows.Next() {
		var m models.Media
		err := rows.Scan(&m.ID, &m.PropertyID, &m.MediaType, &m.URL, &m.LocalPath,
			&m.Caption, &m.DateTaken, &m.UploadedBy, &m.UploadedDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (s *sqlStore) Notes(ctx context.Context, propertyID int64) ([]models.Note, error) {
	query := `SELECT id, property_id, note_text, tags, priority, visited, visit_date, created_date
		FROM notes WHERE property_id = $1 ORDER BY created_date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes of property %d: %w", propertyID, err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		err := rows.Scan(&n.ID, &n.PropertyID, &n.Text, &n.Tags, &n.Priority,
			&n.Visited, &n.VisitDate, &n.CreatedDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *sqlStore) News(ctx context.Context, propertyID int64) ([]models.NewsMention, error) {
	query := `SELECT id, property_id, title, url, source, published_date, summary, sentiment
		FROM news_mentions WHERE property_id = $1
		ORDER BY CASE WHEN published_date IS NULL THEN 1 ELSE 0 END, published_date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query news of property %d: %w", propertyID, err)
	}
	defer rows.Close()

	news := []models.NewsMention{}
	for rows.Next() {
		var n models.NewsMention
		err := rows.Scan(&n.ID, &n.PropertyID, &n.Title, &n.URL, &n.Source,
			&n.PublishedDate, &n.Summary, &n.Sentiment)
		if err != nil {
			return nil, fmt.Errorf("failed to scan news mention: %w", err)
		}
		news = append(news, n)
	}
	return news, rows.Err()
}

func (s *sqlStore) AddMedia(ctx context.Context, m *models.Media) error {
	query := `INSERT INTO media (property_id, media_type, url, local_path, caption, date_taken, uploaded_by, uploaded_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := s.db.QueryRowContext(ctx, s.d.rebind(query), m.PropertyID, m.MediaType, m.URL, m.LocalPath,
		m.Caption, m.DateTaken, m.UploadedBy, m.UploadedDate).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to add media to property %d: %w", m.PropertyID, err)
	}
	return nil
}

func (s *sqlStore) AddNote(ctx context.Context, n *models.Note) error {
	if n.Tags == nil {
		n.Tags = models.StringList{}
	}
	query := `INSERT INTO notes (property_id, note_text, tags, priority, visited, visit_date, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := s.db.QueryRowContext(ctx, s.d.rebind(query), n.PropertyID, n.Text, n.Tags, n.Priority,
		n.Visited, n.VisitDate, n.CreatedDate).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to add note to property %d: %w", n.PropertyID, err)
	}
	return nil
}

func (s *sqlStore) AddNews(ctx context.Context, n *models.NewsMention) error {
	query := `INSERT INTO news_mentions (property_id, title, url, source, published_date, summary, sentiment)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := s.db.QueryRowContext(ctx, s.d.rebind(query), n.PropertyID, n.Title, n.URL, n.Source,
		n.PublishedDate, n.Summary, n.Sentiment).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to add news mention %s: %w", n.URL, s.d.translate(err))
	}
	return nil
}
