package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/engine/dispatch"
	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/model"
)

const sessionKey = "session"

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"backend":  s.backend.Capabilities(),
		"sessions": s.store.Len(),
	})
}

func (s *Server) loadSession(c *gin.Context) {
	sess, ok := s.store.Get(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, "session_not_found", "unknown or expired session")
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

type stateResponse struct {
	ID                 string           `json:"id"`
	Category           *model.Category  `json:"category"`
	Loading            string           `json:"loading,omitempty"`
	Pending            filters.Snapshot `json:"pending"`
	Applied            filters.Snapshot `json:"applied"`
	PendingChangeCount int              `json:"pendingChangeCount"`
	Dirty              bool             `json:"dirty"`
	Config             map[string]any   `json:"config"`
	Zoom               int              `json:"zoom"`
}

func stateOf(sess *session.Session) stateResponse {
	st := stateResponse{
		ID:                 sess.ID(),
		Loading:            sess.Loading(),
		Pending:            sess.Filters().Pending(),
		Applied:            sess.Filters().Applied(),
		PendingChangeCount: sess.Filters().PendingChangeCount(),
		Dirty:              sess.Filters().Dirty(),
		Config:             sess.Config().Map(),
		Zoom:               sess.Zoom(),
	}
	if cat, ok := sess.Category(); ok {
		st.Category = &cat
	}
	return st
}

func (s *Server) createSession(c *gin.Context) {
	c.JSON(http.StatusCreated, stateOf(s.store.Create()))
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, stateOf(current(c)))
}

type categoryRequest struct {
	Slug string `json:"slug"`
}

func (s *Server) setCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := current(c)
	if _, err := sess.ChangeCategory(c.Request.Context(), req.Slug); err != nil {
		if errors.Is(err, session.ErrCategoryNotFound) {
			abort(c, http.StatusNotFound, "category_not_found", err.Error())
			return
		}
		abort(c, http.StatusBadGateway, "category_unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, stateOf(sess))
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) setQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := current(c)
	sess.SetQuery(req.Query)
	c.JSON(http.StatusOK, stateOf(sess))
}

type pageRequest struct {
	Page *int `json:"page" binding:"required,gte=0"`
}

func (s *Server) setPage(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := current(c)
	sess.SetPage(*req.Page)
	c.JSON(http.StatusOK, stateOf(sess))
}

type locationInput struct {
	Text string   `json:"text"`
	Lat  *float64 `json:"lat" binding:"omitempty,gte=-90,lte=90"`
	Lng  *float64 `json:"lng" binding:"omitempty,gte=-180,lte=180"`
}

// pendingRequest edits the pending snapshot. Every field is optional.
type pendingRequest struct {
	Hours               *filters.Hours  `json:"hours"`
	DistanceRadius      *model.Distance `json:"distanceRadius"`
	Location            *locationInput  `json:"location"`
	ToggleEligibilities []string        `json:"toggleEligibilities"`
	Revert              bool            `json:"revert"`
}

func (s *Server) editPending(c *gin.Context) {
	var req pendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Hours != nil && !req.Hours.Valid() {
		abort(c, http.StatusBadRequest, "invalid_request", "hours must be any, openNow or openLate")
		return
	}
	if loc := req.Location; loc != nil && (loc.Lat == nil) != (loc.Lng == nil) {
		abort(c, http.StatusBadRequest, "invalid_request", "location needs both lat and lng, or neither")
		return
	}

	m := current(c).Filters()
	if req.Revert {
		m.Revert()
	}
	if req.Hours != nil {
		m.SetPendingHours(*req.Hours)
	}
	if req.DistanceRadius != nil {
		m.SetPendingDistance(*req.DistanceRadius)
	}
	if loc := req.Location; loc != nil {
		var pt *orb.Point
		if loc.Lat != nil {
			pt = &orb.Point{*loc.Lng, *loc.Lat}
		}
		m.SetPendingLocation(loc.Text, pt)
	}
	for _, v := range req.ToggleEligibilities {
		m.TogglePendingEligibility(v)
	}
	c.JSON(http.StatusOK, stateOf(current(c)))
}

func (s *Server) applyFilters(c *gin.Context) {
	sess := current(c)
	sess.ApplyFilters()
	c.JSON(http.StatusOK, stateOf(sess))
}

func (s *Server) clearFilters(c *gin.Context) {
	sess := current(c)
	sess.ClearFilters()
	c.JSON(http.StatusOK, stateOf(sess))
}

type latLng struct {
	Lat *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
}

func (p latLng) point() orb.Point { return orb.Point{*p.Lng, *p.Lat} }

type areaRequest struct {
	NE   latLng `json:"ne" binding:"required"`
	SW   latLng `json:"sw" binding:"required"`
	Zoom int    `json:"zoom" binding:"gte=0,lte=22"`
}

func (s *Server) searchArea(c *gin.Context) {
	var req areaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := current(c)
	if req.Zoom > 0 {
		sess.SetZoom(req.Zoom)
	}
	sess.SearchThisArea(geo.Corners{NE: req.NE.point(), SW: req.SW.point()})
	c.JSON(http.StatusOK, stateOf(sess))
}

type placeRequest struct {
	PredictionID string `json:"predictionId" binding:"required"`
	Description  string `json:"description"`
}

func (s *Server) selectPlace(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := current(c)
	if pt := sess.SelectPlace(c.Request.Context(), req.PredictionID, req.Description); pt == nil {
		// Lookup failures leave the pending location as it was.
		s.logger.Debug("place not resolved", "prediction", req.PredictionID)
	}
	c.JSON(http.StatusOK, stateOf(sess))
}

func (s *Server) search(c *gin.Context) {
	sess := current(c)
	res, err := sess.Search(c.Request.Context())
	if err != nil {
		if errors.Is(err, dispatch.ErrStaleContext) {
			abort(c, http.StatusConflict, "stale_context", err.Error())
			return
		}
		abort(c, http.StatusServiceUnavailable, "search_unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) predictions(c *gin.Context) {
	sess, ok := s.store.Get(c.Query("session"))
	if !ok {
		abort(c, http.StatusNotFound, "session_not_found", "predictions need a session")
		return
	}
	preds, ok := sess.Predict(c.Request.Context(), c.Query("q"))
	if !ok {
		// A newer request for the same field replaced this one.
		c.JSON(http.StatusOK, gin.H{"predictions": []geo.Prediction{}, "superseded": true})
		return
	}
	if preds == nil {
		preds = []geo.Prediction{}
	}
	c.JSON(http.StatusOK, gin.H{"predictions": preds})
}

func (s *Server) listCategories(c *gin.Context) {
	vals, err := s.categories.Categories(c.Request.Context())
	if err != nil {
		abort(c, http.StatusBadGateway, "categories_unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": vals})
}

func (s *Server) getListing(c *gin.Context) {
	l, err := s.backend.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			abort(c, http.StatusNotFound, "listing_not_found", err.Error())
			return
		}
		abort(c, http.StatusBadGateway, "backend_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, l)
}
