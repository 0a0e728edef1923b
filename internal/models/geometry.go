package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// Point is a WGS84 location. GeoJSON orders coordinates [lng, lat].
type Point struct {
	Lat float64
	Lng float64
}

// MarshalJSON renders the point as a GeoJSON geometry.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}{
		Type:        "Point",
		Coordinates: [2]float64{p.Lng, p.Lat},
	})
}

// UnmarshalJSON parses a GeoJSON Point geometry.
func (p *Point) UnmarshalJSON(data []byte) error {
	var geom struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &geom); err != nil {
		return fmt.Errorf("failed to unmarshal point: %w", err)
	}
	if geom.Type != "" && geom.Type != "Point" {
		return fmt.Errorf("expected Point type, got %s", geom.Type)
	}
	p.Lng, p.Lat = geom.Coordinates[0], geom.Coordinates[1]
	return nil
}

// Feature is a GeoJSON feature whose properties are a reporting projection.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   Point           `json:"geometry"`
	Properties PropertySummary `json:"properties"`
}

// FeatureCollection is the map-data payload consumed by dashboards.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection projects every property that has coordinates.
// Properties without a location are skipped.
func NewFeatureCollection(props []Property) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(props))}
	for i := range props {
		p := &props[i]
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Point{Lat: *p.Latitude, Lng: *p.Longitude},
			Properties: p.Summary(),
		})
	}
	return fc
}

// StringList is an ordered list of strings persisted as a JSON text column.
// A nil list is stored as NULL.
type StringList []string

// Scan implements sql.Scanner for JSON text columns.
func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("failed to scan StringList: expected text, got %T", value)
	}

	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}

	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	*l = items
	return nil
}

// Value implements driver.Valuer, encoding the list as a JSON array.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	return slices.Contains(l, s)
}

// Append adds s if it is not already present, keeping insertion order.
// It reports whether the list changed.
func (l *StringList) Append(s string) bool {
	if l.Contains(s) {
		return false
	}
	*l = append(*l, s)
	return true
}
