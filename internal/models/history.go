package models

import (
	"encoding/json"
	"time"
)

// SourceObservation is the raw record a source produced for a property.
type SourceObservation struct {
	ID         int64           `json:"id"`
	PropertyID int64           `json:"property_id"`
	SourceName string          `json:"source_name"`
	SourceURL  *string         `json:"source_url,omitempty"`
	ObservedAt time.Time       `json:"observed_at"`
	RawData    json.RawMessage `json:"raw_data,omitempty"`
}

// FieldChange records one attribute changed by a merge.
type FieldChange struct {
	ID         int64     `json:"id"`
	PropertyID int64     `json:"property_id"`
	FieldName  string    `json:"field_name"`
	OldValue   *string   `json:"old_value"`
	NewValue   *string   `json:"new_value"`
	ChangedAt  time.Time `json:"changed_at"`
	Source     string    `json:"source"`
}

// Media is a photo, video or document reference attached to a property.
type Media struct {
	ID           int64      `json:"id"`
	PropertyID   int64      `json:"property_id"`
	MediaType    string     `json:"media_type"`
	URL          *string    `json:"url,omitempty"`
	LocalPath    *string    `json:"local_path,omitempty"`
	Caption      *string    `json:"caption,omitempty"`
	DateTaken    *time.Time `json:"date_taken,omitempty"`
	UploadedBy   *string    `json:"uploaded_by,omitempty"`
	UploadedDate time.Time  `json:"uploaded_date"`
}

// NewsMention is a news article referencing a property. URL is unique.
type NewsMention struct {
	ID            int64      `json:"id"`
	PropertyID    int64      `json:"property_id"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Source        *string    `json:"source,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Summary       *string    `json:"summary,omitempty"`
	Sentiment     *string    `json:"sentiment,omitempty"`
}

// Note is a user-authored field note.
type Note struct {
	ID          int64      `json:"id"`
	PropertyID  int64      `json:"property_id"`
	Text        string     `json:"note_text"`
	Tags        StringList `json:"tags"`
	Priority    int        `json:"priority"`
	Visited     bool       `json:"visited"`
	VisitDate   *time.Time `json:"visit_date,omitempty"`
	CreatedDate time.Time  `json:"created_date"`
}
