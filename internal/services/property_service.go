package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
	"github.com/umahmood/haversine"
)

// Coordinate validation constants
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// Radius validation constants
const (
	MinRadiusMeters = 1
	MaxRadiusMeters = 50_000
)

// MinSearchLength is the shortest query Search will run.
const MinSearchLength = 3

// MaxDemolitionDays bounds the demolition watch window.
const MaxDemolitionDays = 3650

// Service-level errors
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrPropertyNotFound   = errors.New("property not found")
	ErrInvalidRadius      = fmt.Errorf("radius must be between %d and %d meters", MinRadiusMeters, MaxRadiusMeters)
	ErrInvalidDays        = fmt.Errorf("days must be between 0 and %d", MaxDemolitionDays)
)

// PropertyWithDistance is a property and its distance from a query point.
type PropertyWithDistance struct {
	Property models.Property `json:"property"`
	Distance float64         `json:"distance_meters"`
}

// PropertyService is the read side of the canonical store plus the
// user-authored annotations (notes, media, news) attached to properties.
type PropertyService interface {
	// GetProperty returns ErrPropertyNotFound when id does not exist.
	GetProperty(ctx context.Context, id int64) (*models.Property, error)

	// ListProperties returns matches sorted by abandonment score, then
	// exploration score, both descending.
	ListProperties(ctx context.Context, f repository.ListFilter) ([]models.Property, error)

	// DemolitionWatch returns properties scheduled for demolition between
	// today and today+days, soonest first.
	DemolitionWatch(ctx context.Context, days int) ([]models.Property, error)

	// Search returns an empty result for queries shorter than
	// MinSearchLength characters.
	Search(ctx context.Context, q string, limit int) ([]models.Property, error)

	Statistics(ctx context.Context) (*models.Statistics, error)

	// Nearby returns geocoded properties within radiusMeters of a point,
	// closest first.
	Nearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]PropertyWithDistance, error)

	TaxDelinquent(ctx context.Context, minYears, limit int) ([]models.Property, error)
	Foreclosures(ctx context.Context, limit int) ([]models.Property, error)

	// MapData projects geocoded properties scoring at least minScore as
	// GeoJSON.
	MapData(ctx context.Context, minScore int) (models.FeatureCollection, error)

	History(ctx context.Context, id int64) ([]models.FieldChange, error)
	Observations(ctx context.Context, id int64) ([]models.SourceObservation, error)
	Media(ctx context.Context, id int64) ([]models.Media, error)
	Notes(ctx context.Context, id int64) ([]models.Note, error)
	News(ctx context.Context, id int64) ([]models.NewsMention, error)

	AddNote(ctx context.Context, id int64, note *models.Note) error
	AddMedia(ctx context.Context, id int64, media *models.Media) error
	AddNews(ctx context.Context, id int64, news *models.NewsMention) error

	RunLogs(ctx context.Context, limit int) ([]models.RunLog, error)
}

// propertyService is the concrete implementation of PropertyService.
type propertyService struct {
	store repository.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewPropertyService creates a new instance of PropertyService.
func NewPropertyService(store repository.Store, log *logger.Logger) PropertyService {
	return &propertyService{
		store: store,
		log:   log.WithComponent("properties"),
		now:   time.Now,
	}
}

func (s *propertyService) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.log.Error("Failed to get property", err, map[string]interface{}{"property_id": id})
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	// Repository returns nil, nil when no property found - transform to domain error
	if p == nil {
		return nil, ErrPropertyNotFound
	}
	return p, nil
}

func (s *propertyService) ListProperties(ctx context.Context, f repository.ListFilter) ([]models.Property, error) {
	props, err := s.store.List(ctx, f)
	if err != nil {
		s.log.Error("Failed to list properties", err, map[string]interface{}{
			"state":     f.State,
			"county":    f.County,
			"city":      f.City,
			"status":    f.Status,
			"min_score": f.MinScore,
		})
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, nil
}

func (s *propertyService) DemolitionWatch(ctx context.Context, days int) ([]models.Property, error) {
	if days < 0 || days > MaxDemolitionDays {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDays, days)
	}

	y, m, d := s.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	props, err := s.store.DemolitionWatch(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		s.log.Error("Failed to query demolition watch", err, map[string]interface{}{"days": days})
		return nil, fmt.Errorf("failed to query demolition watch: %w", err)
	}
	return props, nil
}

func (s *propertyService) Search(ctx context.Context, q string, limit int) ([]models.Property, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinSearchLength {
		return []models.Property{}, nil
	}

	props, err := s.store.Search(ctx, q, limit)
	if err != nil {
		s.log.Error("Failed to search properties", err, map[string]interface{}{"query": q})
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	return props, nil
}

func (s *propertyService) Statistics(ctx context.Context) (*models.Statistics, error) {
	st, err := s.store.Statistics(ctx)
	if err != nil {
		s.log.Error("Failed to compute statistics", err, nil)
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}
	return st, nil
}

func validateCoordinates(lat, lng float64) error {
	if lat < MinLatitude || lat > MaxLatitude {
		return fmt.Errorf("%w: latitude must be between %f and %f, got %f",
			ErrInvalidCoordinates, MinLatitude, MaxLatitude, lat)
	}
	if lng < MinLongitude || lng > MaxLongitude {
		return fmt.Errorf("%w: longitude must be between %f and %f, got %f",
			ErrInvalidCoordinates, MinLongitude, MaxLongitude, lng)
	}
	return nil
}

// boundingBox returns a box enclosing the circle of radiusKm around the
// point. It does not wrap across the antimeridian.
func boundingBox(lat, lng, radiusKm float64) repository.Bounds {
	const kmPerDegree = 111.0
	latDelta := radiusKm / kmPerDegree
	lngDelta := 180.0
	if c := math.Cos(lat * math.Pi / 180); c > 0.01 {
		lngDelta = radiusKm / (kmPerDegree * c)
	}
	return repository.Bounds{
		MinLat: math.Max(lat-latDelta, MinLatitude),
		MaxLat: math.Min(lat+latDelta, MaxLatitude),
		MinLng: math.Max(lng-lngDelta, MinLongitude),
		MaxLng: math.Min(lng+lngDelta, MaxLongitude),
	}
}

func (s *propertyService) Nearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]PropertyWithDistance, error) {
	if err := validateCoordinates(lat, lng); err != nil {
		s.log.Warn("Invalid coordinates provided", map[string]interface{}{
			"lat":    lat,
			"lng":    lng,
			"radius": radiusMeters,
		})
		return nil, err
	}
	if radiusMeters < MinRadiusMeters || radiusMeters > MaxRadiusMeters {
		s.log.Warn("Invalid radius provided", map[string]interface{}{
			"lat":    lat,
			"lng":    lng,
			"radius": radiusMeters,
		})
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRadius, radiusMeters)
	}

	radiusKm := float64(radiusMeters) / 1000
	candidates, err := s.store.WithinBounds(ctx, boundingBox(lat, lng, radiusKm))
	if err != nil {
		s.log.Error("Failed to query nearby properties", err, map[string]interface{}{
			"lat":    lat,
			"lng":    lng,
			"radius": radiusMeters,
		})
		return nil, fmt.Errorf("failed to query nearby properties: %w", err)
	}

	origin := haversine.Coord{Lat: lat, Lon: lng}
	results := []PropertyWithDistance{}
	for _, p := range candidates {
		_, km := haversine.Distance(origin, haversine.Coord{Lat: *p.Latitude, Lon: *p.Longitude})
		if km > radiusKm {
			continue
		}
		results = append(results, PropertyWithDistance{Property: p, Distance: km * 1000})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })

	s.log.Debug("Nearby properties found", map[string]interface{}{
		"lat":    lat,
		"lng":    lng,
		"radius": radiusMeters,
		"count":  len(results),
	})
	return results, nil
}

func (s *propertyService) TaxDelinquent(ctx context.Context, minYears, limit int) ([]models.Property, error) {
	props, err := s.store.TaxDelinquent(ctx, minYears, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax delinquent properties: %w", err)
	}
	return props, nil
}

func (s *propertyService) Foreclosures(ctx context.Context, limit int) ([]models.Property, error) {
	props, err := s.store.Foreclosures(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreclosures: %w", err)
	}
	return props, nil
}

func (s *propertyService) MapData(ctx context.Context, minScore int) (models.FeatureCollection, error) {
	props, err := s.store.MapPoints(ctx, minScore)
	if err != nil {
		return models.FeatureCollection{}, fmt.Errorf("failed to query map data: %w", err)
	}
	return models.NewFeatureCollection(props), nil
}

// requireProperty maps a missing property to ErrPropertyNotFound so the
// per-property listings do not return an empty list for a bad id.
func (s *propertyService) requireProperty(ctx context.Context, id int64) error {
	_, err := s.GetProperty(ctx, id)
	return err
}

func (s *propertyService) History(ctx context.Context, id int64) ([]models.FieldChange, error) {
	if err := s.requireProperty(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.store.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return changes, nil
}

func (s *propertyService) Observations(ctx context.Context, id int64) ([]models.SourceObservation, error) {
	if err := s.requireProperty(ctx, id); err != nil {
		return nil, err
	}
	obs, err := s.store.Observations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	return obs, nil
}

func (s *propertyService) Media(ctx context.Context, id int64) ([]models.Media, error) {
	if err := s.requireProperty(ctx, id); err != nil {
		return nil, err
	}
	media, err := s.store.Media(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	return media, nil
}

func (s *propertyService) Notes(ctx context.Context, id int64) ([]models.Note, error) {
	if err := s.requireProperty(ctx, id); err != nil {
		return nil, err
	}
	notes, err := s.store.Notes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	return notes, nil
}

func (s *propertyService) News(ctx context.Context, id int64) ([]models.NewsMention, error) {
	if err := s.requireProperty(ctx, id); err != nil {
		return nil, err
	}
	news, err := s.store.News(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	return news, nil
}

func (s *propertyService) AddNote(ctx context.Context, id int64, note *models.Note) error {
	if err := s.requireProperty(ctx, id); err != nil {
		return err
	}
	note.PropertyID = id
	if note.CreatedDate.IsZero() {
		note.CreatedDate = s.now().UTC()
	}
	if err := s.store.AddNote(ctx, note); err != nil {
		s.log.Error("Failed to add note", err, map[string]interface{}{"property_id": id})
		return fmt.Errorf("failed to add note: %w", err)
	}
	s.log.Info("Note added", map[string]interface{}{"property_id": id, "note_id": note.ID})
	return nil
}

func (s *propertyService) AddMedia(ctx context.Context, id int64, media *models.Media) error {
	if err := s.requireProperty(ctx, id); err != nil {
		return err
	}
	media.PropertyID = id
	if media.UploadedDate.IsZero() {
		media.UploadedDate = s.now().UTC()
	}
	if err := s.store.AddMedia(ctx, media); err != nil {
		return fmt.Errorf("failed to add media: %w", err)
	}
	return nil
}

func (s *propertyService) AddNews(ctx context.Context, id int64, news *models.NewsMention) error {
	if err := s.requireProperty(ctx, id); err != nil {
		return err
	}
	news.PropertyID = id
	if err := s.store.AddNews(ctx, news); err != nil {
		return fmt.Errorf("failed to add news mention: %w", err)
	}
	return nil
}

func (s *propertyService) RunLogs(ctx context.Context, limit int) ([]models.RunLog, error) {
	logs, err := s.store.ListRunLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	return logs, nil
}
