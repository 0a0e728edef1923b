package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/urbex/api/internal/errors"
	"github.com/stwalsh4118/urbex/api/internal/export"
	"github.com/stwalsh4118/urbex/api/internal/middleware"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
	"github.com/stwalsh4118/urbex/api/internal/services"
)

// Query defaults.
const (
	defaultListLimit      = 100
	defaultSearchLimit    = 50
	defaultReportLimit    = 100
	defaultRunLimit       = 50
	defaultMapMinScore    = 5
	defaultDemolitionDays = 30
	defaultRadiusMeters   = 1000
	defaultMinYears       = 1
)

// PropertyHandler serves the read API over canonical properties and the
// annotations attached to them.
type PropertyHandler struct {
	service services.PropertyService
}

// NewPropertyHandler creates a new PropertyHandler instance.
func NewPropertyHandler(service services.PropertyService) *PropertyHandler {
	return &PropertyHandler{
		service: service,
	}
}

// RegisterRoutes mounts every property route on rg.
func (h *PropertyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	properties := rg.Group("/properties")
	{
		properties.GET("", h.List)
		properties.GET("/nearby", h.Nearby)
		properties.GET("/:id", h.Get)
		properties.GET("/:id/history", h.History)
		properties.GET("/:id/sources", h.Sources)
		properties.GET("/:id/media", h.Media)
		properties.POST("/:id/media", h.AddMedia)
		properties.GET("/:id/news", h.News)
		properties.POST("/:id/news", h.AddNews)
		properties.GET("/:id/notes", h.Notes)
		properties.POST("/:id/notes", h.AddNote)
	}

	rg.GET("/map-data", h.MapData)
	rg.GET("/stats", h.Stats)
	rg.GET("/demolition-watch", h.DemolitionWatch)
	rg.GET("/search", h.Search)
	rg.GET("/tax-delinquent", h.TaxDelinquent)
	rg.GET("/foreclosures", h.Foreclosures)
	rg.GET("/export.csv", h.ExportCSV)
	rg.GET("/runs", h.Runs)
}

// ListRequest holds the filters of the property list and export endpoints.
type ListRequest struct {
	State    string `form:"state" binding:"omitempty,len=2"`
	County   string `form:"county" binding:"max=100"`
	City     string `form:"city" binding:"max=100"`
	Status   string `form:"status" binding:"max=50"`
	MinScore int    `form:"min_score" binding:"min=0,max=10"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

func (r ListRequest) filter() repository.ListFilter {
	return repository.ListFilter{
		State:    r.State,
		County:   r.County,
		City:     r.City,
		Status:   r.Status,
		MinScore: r.MinScore,
		Limit:    r.Limit,
	}
}

// PropertyURI is the path parameter of per-property routes.
type PropertyURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// NearbyRequest represents the query parameters for the nearby endpoint.
type NearbyRequest struct {
	Lat    *float64 `form:"lat" binding:"required,min=-90,max=90"`
	Lng    *float64 `form:"lng" binding:"required,min=-180,max=180"`
	Radius int      `form:"radius" binding:"omitempty,min=1,max=50000"`
}

// MapDataRequest represents the query parameters for the map endpoint.
type MapDataRequest struct {
	MinScore *int `form:"min_score" binding:"omitempty,min=0,max=10"`
}

// DemolitionRequest represents the query parameters for demolition watch.
type DemolitionRequest struct {
	Days *int `form:"days" binding:"omitempty,min=0,max=3650"`
}

// SearchRequest represents the query parameters for search.
type SearchRequest struct {
	Q     string `form:"q" binding:"max=200"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// TaxDelinquentRequest represents the query parameters for the tax report.
type TaxDelinquentRequest struct {
	MinYears int `form:"min_years" binding:"omitempty,min=1,max=100"`
	Limit    int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// LimitRequest carries a bare result limit.
type LimitRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// NoteRequest is the body of POST /properties/:id/notes.
type NoteRequest struct {
	NoteText  string   `json:"note_text" binding:"required,max=5000"`
	Tags      []string `json:"tags" binding:"max=20,dive,max=50"`
	Priority  int      `json:"priority" binding:"min=0,max=5"`
	Visited   bool     `json:"visited"`
	VisitDate string   `json:"visit_date" binding:"omitempty,datetime=2006-01-02"`
}

// MediaRequest is the body of POST /properties/:id/media.
type MediaRequest struct {
	MediaType  string `json:"media_type" binding:"required,oneof=photo video document"`
	URL        string `json:"url" binding:"omitempty,url"`
	LocalPath  string `json:"local_path" binding:"max=500"`
	Caption    string `json:"caption" binding:"max=1000"`
	DateTaken  string `json:"date_taken" binding:"omitempty,datetime=2006-01-02"`
	UploadedBy string `json:"uploaded_by" binding:"max=100"`
}

// NewsRequest is the body of POST /properties/:id/news.
type NewsRequest struct {
	Title         string `json:"title" binding:"required,max=500"`
	URL           string `json:"url" binding:"required,url"`
	Source        string `json:"source" binding:"max=200"`
	PublishedDate string `json:"published_date" binding:"omitempty,datetime=2006-01-02"`
	Summary       string `json:"summary" binding:"max=5000"`
	Sentiment     string `json:"sentiment" binding:"omitempty,oneof=positive neutral negative"`
}

// SummaryListResponse lists properties in the reporting projection.
type SummaryListResponse struct {
	Properties []models.PropertySummary `json:"properties"`
	Count      int                      `json:"count"`
}

// PropertyListResponse lists full property records.
type PropertyListResponse struct {
	Properties []models.Property `json:"properties"`
	Count      int               `json:"count"`
}

// PropertyResponse wraps a single property.
type PropertyResponse struct {
	Property *models.Property `json:"property"`
}

// NearbyResponse represents the response for the nearby endpoint.
type NearbyResponse struct {
	Properties []services.PropertyWithDistance `json:"properties"`
	Count      int                             `json:"count"`
}

// List handles GET /api/v1/properties.
func (h *PropertyHandler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}

	props, err := h.service.ListProperties(c.Request.Context(), req.filter())
	if err != nil {
		h.serviceError(c, err, "Failed to list properties")
		return
	}
	c.JSON(http.StatusOK, summaries(props))
}

// Get handles GET /api/v1/properties/:id.
func (h *PropertyHandler) Get(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	p, err := h.service.GetProperty(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err, "Failed to load property")
		return
	}
	c.JSON(http.StatusOK, PropertyResponse{Property: p})
}

// History handles GET /api/v1/properties/:id/history.
func (h *PropertyHandler) History(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	changes, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err, "Failed to load property history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes, "count": len(changes)})
}

// Sources handles GET /api/v1/properties/:id/sources.
func (h *PropertyHandler) Sources(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	obs, err := h.service.Observations(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err, "Failed to load source observations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"observations": obs, "count": len(obs)})
}

// Media handles GET /api/v1/properties/:id/media.
func (h *PropertyHandler) Media(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	media, err := h.service.Media(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err, "Failed to load media")
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media, "count": len(media)})
}

// AddMedia handles POST /api/v1/properties/:id/media.
func (h *PropertyHandler) AddMedia(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	var req MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}

	m := &models.Media{
		MediaType:  req.MediaType,
		URL:        optional(req.URL),
		LocalPath:  optional(req.LocalPath),
		Caption:    optional(req.Caption),
		DateTaken:  optionalDate(req.DateTaken),
		UploadedBy: optional(req.UploadedBy),
	}
	if err := h.service.AddMedia(c.Request.Context(), id, m); err != nil {
		h.serviceError(c, err, "Failed to add media")
		return
	}
	c.JSON(http.StatusCreated, m)
}

// News handles GET /api/v1/properties/:id/news.
func (h *PropertyHandler) News(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	news, err := h.service.News(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err, "Failed to load news mentions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": news, "count": len(news)})
}

// AddNews handles POST /api/v1/properties/:id/news.
func (h *PropertyHandler) AddNews(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	var req NewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}

	n := &models.NewsMention{
		Title:         req.Title,
		URL:           req.URL,
		Source:        optional(req.Source),
		PublishedDate: optionalDate(req.PublishedDate),
		Summary:       optional(req.Summary),
		Sentiment:     optional(req.Sentiment),
	}
	if err := h.service.AddNews(c.Request.Context(), id, n); err != nil {
		h.serviceError(c, err, "Failed to add news mention")
		return
	}
	c.JSON(http.StatusCreated, n)
}

// Notes handles GET /api/v1/properties/:id/notes.
func (h *PropertyHandler) Notes(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	notes, err := h.service.Notes(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err, "Failed to load notes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes, "count": len(notes)})
}

// AddNote handles POST /api/v1/properties/:id/notes.
func (h *PropertyHandler) AddNote(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}

	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}

	note := &models.Note{
		Text:      req.NoteText,
		Tags:      models.StringList(req.Tags),
		Priority:  req.Priority,
		Visited:   req.Visited,
		VisitDate: optionalDate(req.VisitDate),
	}
	if err := h.service.AddNote(c.Request.Context(), id, note); err != nil {
		h.serviceError(c, err, "Failed to add note")
		return
	}
	c.JSON(http.StatusCreated, note)
}

// Nearby handles GET /api/v1/properties/nearby.
func (h *PropertyHandler) Nearby(c *gin.Context) {
	var req NearbyRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	if req.Radius == 0 {
		req.Radius = defaultRadiusMeters
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Debug("Processing nearby request", map[string]interface{}{
			"lat":    *req.Lat,
			"lng":    *req.Lng,
			"radius": req.Radius,
		})
	}

	props, err := h.service.Nearby(c.Request.Context(), *req.Lat, *req.Lng, req.Radius)
	if err != nil {
		h.serviceError(c, err, "Failed to query nearby properties")
		return
	}
	c.JSON(http.StatusOK, NearbyResponse{Properties: props, Count: len(props)})
}

// MapData handles GET /api/v1/map-data.
func (h *PropertyHandler) MapData(c *gin.Context) {
	var req MapDataRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	minScore := defaultMapMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	fc, err := h.service.MapData(c.Request.Context(), minScore)
	if err != nil {
		h.serviceError(c, err, "Failed to build map data")
		return
	}
	c.JSON(http.StatusOK, fc)
}

// Stats handles GET /api/v1/stats.
func (h *PropertyHandler) Stats(c *gin.Context) {
	st, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to compute statistics")
		return
	}
	c.JSON(http.StatusOK, st)
}

// DemolitionWatch handles GET /api/v1/demolition-watch.
func (h *PropertyHandler) DemolitionWatch(c *gin.Context) {
	var req DemolitionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	days := defaultDemolitionDays
	if req.Days != nil {
		days = *req.Days
	}

	props, err := h.service.DemolitionWatch(c.Request.Context(), days)
	if err != nil {
		h.serviceError(c, err, "Failed to load demolition watch")
		return
	}
	c.JSON(http.StatusOK, summaries(props))
}

// Search handles GET /api/v1/search.
func (h *PropertyHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}

	props, err := h.service.Search(c.Request.Context(), req.Q, req.Limit)
	if err != nil {
		h.serviceError(c, err, "Failed to search properties")
		return
	}
	c.JSON(http.StatusOK, summaries(props))
}

// TaxDelinquent handles GET /api/v1/tax-delinquent.
func (h *PropertyHandler) TaxDelinquent(c *gin.Context) {
	var req TaxDelinquentRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	if req.MinYears == 0 {
		req.MinYears = defaultMinYears
	}
	if req.Limit == 0 {
		req.Limit = defaultReportLimit
	}

	props, err := h.service.TaxDelinquent(c.Request.Context(), req.MinYears, req.Limit)
	if err != nil {
		h.serviceError(c, err, "Failed to load tax-delinquent properties")
		return
	}
	c.JSON(http.StatusOK, PropertyListResponse{Properties: props, Count: len(props)})
}

// Foreclosures handles GET /api/v1/foreclosures.
func (h *PropertyHandler) Foreclosures(c *gin.Context) {
	var req LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultReportLimit
	}

	props, err := h.service.Foreclosures(c.Request.Context(), req.Limit)
	if err != nil {
		h.serviceError(c, err, "Failed to load foreclosures")
		return
	}
	c.JSON(http.StatusOK, PropertyListResponse{Properties: props, Count: len(props)})
}

// ExportCSV handles GET /api/v1/export.csv. It accepts the list filters;
// without a limit every matching property is exported.
func (h *PropertyHandler) ExportCSV(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}

	props, err := h.service.ListProperties(c.Request.Context(), req.filter())
	if err != nil {
		h.serviceError(c, err, "Failed to export properties")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, models.Summaries(props)); err != nil {
		apierrors.InternalServerError(c, "Failed to export properties", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="properties.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Runs handles GET /api/v1/runs.
func (h *PropertyHandler) Runs(c *gin.Context) {
	var req LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindingError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultRunLimit
	}

	logs, err := h.service.RunLogs(c.Request.Context(), req.Limit)
	if err != nil {
		h.serviceError(c, err, "Failed to list run logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": logs, "count": len(logs)})
}

// serviceError maps service-level errors onto the API error envelope.
func (h *PropertyHandler) serviceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrPropertyNotFound):
		apierrors.NotFound(c, "Property not found")
	case errors.Is(err, services.ErrInvalidCoordinates),
		errors.Is(err, services.ErrInvalidRadius),
		errors.Is(err, services.ErrInvalidDays):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, repository.ErrConflict):
		apierrors.Conflict(c, "Resource already exists")
	default:
		apierrors.InternalServerError(c, message, err)
	}
}

func bindID(c *gin.Context) (int64, bool) {
	var uri PropertyURI
	if err := c.ShouldBindUri(&uri); err != nil {
		apierrors.BindingError(c, err)
		return 0, false
	}
	return uri.ID, true
}

func summaries(props []models.Property) SummaryListResponse {
	return SummaryListResponse{Properties: models.Summaries(props), Count: len(props)}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// optionalDate parses a date already validated by the binding tags.
func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
