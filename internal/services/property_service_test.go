package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
)

// MockStore is a mock implementation of repository.Store for testing.
// Methods a test does not stub fall through to the nil embedded Store.
type MockStore struct {
	mock.Mock
	repository.Store
}

func (m *MockStore) GetByID(ctx context.Context, id int64) (*models.Property, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Property)
	return p, args.Error(1)
}

func (m *MockStore) List(ctx context.Context, f repository.ListFilter) ([]models.Property, error) {
	args := m.Called(ctx, f)
	props, _ := args.Get(0).([]models.Property)
	return props, args.Error(1)
}

func (m *MockStore) DemolitionWatch(ctx context.Context, from, to time.Time) ([]models.Property, error) {
	args := m.Called(ctx, from, to)
	props, _ := args.Get(0).([]models.Property)
	return props, args.Error(1)
}

func (m *MockStore) Search(ctx context.Context, q string, limit int) ([]models.Property, error) {
	args := m.Called(ctx, q, limit)
	props, _ := args.Get(0).([]models.Property)
	return props, args.Error(1)
}

func (m *MockStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*models.Statistics)
	return st, args.Error(1)
}

func (m *MockStore) WithinBounds(ctx context.Context, b repository.Bounds) ([]models.Property, error) {
	args := m.Called(ctx, b)
	props, _ := args.Get(0).([]models.Property)
	return props, args.Error(1)
}

func (m *MockStore) MapPoints(ctx context.Context, minScore int) ([]models.Property, error) {
	args := m.Called(ctx, minScore)
	props, _ := args.Get(0).([]models.Property)
	return props, args.Error(1)
}

func (m *MockStore) History(ctx context.Context, id int64) ([]models.FieldChange, error) {
	args := m.Called(ctx, id)
	changes, _ := args.Get(0).([]models.FieldChange)
	return changes, args.Error(1)
}

func (m *MockStore) AddNote(ctx context.Context, n *models.Note) error {
	return m.Called(ctx, n).Error(0)
}

func TestGetProperty_Success(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	expected := &models.Property{ID: 12, Address: "123 Main St", State: "IL"}
	mockStore.On("GetByID", ctx, int64(12)).Return(expected, nil)

	// Act
	p, err := service.GetProperty(ctx, 12)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expected, p)
	mockStore.AssertExpectations(t)
}

func TestGetProperty_NotFound(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	mockStore.On("GetByID", ctx, int64(404)).Return(nil, nil)

	p, err := service.GetProperty(ctx, 404)

	assert.ErrorIs(t, err, ErrPropertyNotFound)
	assert.Nil(t, p)
	mockStore.AssertExpectations(t)
}

func TestGetProperty_StoreError(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	dbErr := errors.New("connection reset")
	mockStore.On("GetByID", ctx, int64(1)).Return(nil, dbErr)

	_, err := service.GetProperty(ctx, 1)

	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrPropertyNotFound)
}

func TestListProperties_PassesFilter(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	filter := repository.ListFilter{State: "MI", MinScore: 7, Limit: 50}
	mockStore.On("List", ctx, filter).Return([]models.Property{{ID: 1}}, nil)

	props, err := service.ListProperties(ctx, filter)

	require.NoError(t, err)
	assert.Len(t, props, 1)
	mockStore.AssertExpectations(t)
}

func TestSearch_Threshold(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	mockStore.On("Search", ctx, "mai", 20).Return([]models.Property{{ID: 3}}, nil)

	// Two characters never reach the store.
	props, err := service.Search(ctx, "ma", 20)
	require.NoError(t, err)
	assert.NotNil(t, props)
	assert.Empty(t, props)

	props, err = service.Search(ctx, "  m ", 20)
	require.NoError(t, err)
	assert.Empty(t, props)

	props, err = service.Search(ctx, "mai", 20)
	require.NoError(t, err)
	assert.Len(t, props, 1)

	mockStore.AssertNumberOfCalls(t, "Search", 1)
}

func TestDemolitionWatch_Window(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	service.(*propertyService).now = fixedClock(time.Date(2026, 10, 17, 18, 30, 0, 0, time.UTC))
	ctx := context.Background()

	today := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	mockStore.On("DemolitionWatch", ctx, today, today.AddDate(0, 0, 30)).Return([]models.Property{}, nil)

	_, err := service.DemolitionWatch(ctx, 30)
	require.NoError(t, err)
	mockStore.AssertExpectations(t)

	_, err = service.DemolitionWatch(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidDays)
}

func TestNearby_InvalidInput(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	tests := []struct {
		name   string
		lat    float64
		lng    float64
		radius int
		err    error
	}{
		{name: "latitude too high", lat: 90.1, lng: 0, radius: 100, err: ErrInvalidCoordinates},
		{name: "latitude too low", lat: -91, lng: 0, radius: 100, err: ErrInvalidCoordinates},
		{name: "longitude too high", lat: 0, lng: 180.5, radius: 100, err: ErrInvalidCoordinates},
		{name: "radius zero", lat: 0, lng: 0, radius: 0, err: ErrInvalidRadius},
		{name: "radius too large", lat: 0, lng: 0, radius: MaxRadiusMeters + 1, err: ErrInvalidRadius},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Nearby(ctx, tt.lat, tt.lng, tt.radius)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	mockStore.AssertNotCalled(t, "WithinBounds", mock.Anything, mock.Anything)
}

func TestNearby_FiltersByDistance(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	at := func(id int64, lat, lng float64) models.Property {
		p := models.Property{ID: id}
		p.Latitude, p.Longitude = ptr(lat), ptr(lng)
		return p
	}
	// Roughly 0m, 550m and 1.6km north of the origin; the last sits inside
	// the bounding box corner but outside the circle.
	candidates := []models.Property{
		at(1, 41.8831, -87.6340),
		at(2, 41.8781, -87.6298),
		at(3, 41.8926, -87.6298),
		at(4, 41.8870, -87.6180),
	}
	mockStore.On("WithinBounds", ctx, mock.AnythingOfType("repository.Bounds")).Return(candidates, nil)

	results, err := service.Nearby(ctx, 41.8781, -87.6298, 1000)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].Property.ID)
	assert.InDelta(t, 0, results[0].Distance, 1)
	assert.Equal(t, int64(1), results[1].Property.ID)
	assert.InDelta(t, 650, results[1].Distance, 100)
}

func TestBoundingBox(t *testing.T) {
	b := boundingBox(0, 0, 111)
	assert.InDelta(t, -1, b.MinLat, 0.001)
	assert.InDelta(t, 1, b.MaxLat, 0.001)
	assert.InDelta(t, 1, b.MaxLng, 0.001)

	polar := boundingBox(89.99, 10, 50)
	assert.Equal(t, MaxLatitude, polar.MaxLat)
	assert.Equal(t, MinLongitude, polar.MinLng)
	assert.Equal(t, MaxLongitude, polar.MaxLng)
}

func TestMapData_SkipsUngeocoded(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	geocoded := models.Property{ID: 1, Address: "1 A St", State: "OH", AbandonmentScore: 8}
	geocoded.Latitude, geocoded.Longitude = ptr(41.5), ptr(-81.7)
	mockStore.On("MapPoints", ctx, 5).Return([]models.Property{geocoded, {ID: 2}}, nil)

	fc, err := service.MapData(ctx, 5)

	require.NoError(t, err)
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, 8, fc.Features[0].Properties.AbandonmentScore)
}

func TestHistory_UnknownProperty(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	mockStore.On("GetByID", ctx, int64(9)).Return(nil, nil)

	_, err := service.History(ctx, 9)

	assert.ErrorIs(t, err, ErrPropertyNotFound)
	mockStore.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}

func TestAddNote_SetsPropertyAndDate(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	service.(*propertyService).now = fixedClock(testNow)
	ctx := context.Background()

	mockStore.On("GetByID", ctx, int64(4)).Return(&models.Property{ID: 4}, nil)
	mockStore.On("AddNote", ctx, mock.MatchedBy(func(n *models.Note) bool {
		return n.PropertyID == 4 && n.CreatedDate.Equal(testNow)
	})).Return(nil)

	err := service.AddNote(ctx, 4, &models.Note{Text: "Fence cut on north side"})

	require.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestStatistics_StoreError(t *testing.T) {
	mockStore := new(MockStore)
	service := NewPropertyService(mockStore, logger.Nop())
	ctx := context.Background()

	mockStore.On("Statistics", ctx).Return(nil, errors.New("down"))

	_, err := service.Statistics(ctx)
	assert.Error(t, err)
}
