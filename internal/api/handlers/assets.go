package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/service"
)

// AssetHandler handles fleet endpoints.
type AssetHandler struct {
	dispatcher *service.Dispatcher
	logger     *logrus.Logger
}

// NewAssetHandler creates an asset handler.
func NewAssetHandler(dispatcher *service.Dispatcher, logger *logrus.Logger) *AssetHandler {
	return &AssetHandler{dispatcher: dispatcher, logger: logger}
}

// LocationUpdateRequest is a live position report.
type LocationUpdateRequest struct {
	Clubhouse bool    `json:"clubhouse"`
	Hole      int     `json:"hole"`
	Mid       bool    `json:"mid"`
	From      int     `json:"from"`
	To        int     `json:"to"`
	Fraction  float64 `json:"fraction"`
}

// UpdateLocation moves an asset.
func (h *AssetHandler) UpdateLocation(c *gin.Context) {
	var req LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_REQUEST",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}
	var loc course.Location
	switch {
	case req.Clubhouse:
		loc = course.AtClubhouse()
	case req.Mid:
		loc = course.MidSegment(course.Hole(req.From), course.Hole(req.To), req.Fraction)
	default:
		loc = course.AtHole(course.Hole(req.Hole))
	}
	if err := h.dispatcher.UpdateAssetLocation(c.Param("id"), loc); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Failed to update location",
			Code:  "LOCATION_REJECTED",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": c.Param("id"), "location": loc})
}

// StatusUpdateRequest transitions an asset's status.
type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus transitions an asset's operational status.
func (h *AssetHandler) UpdateStatus(c *gin.Context) {
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_REQUEST",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}
	if err := h.dispatcher.UpdateAssetStatus(c.Param("id"), fleet.Status(req.Status)); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Failed to update status",
			Code:  "STATUS_REJECTED",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": c.Param("id"), "status": req.Status})
}

// ListAssets returns the live fleet snapshot.
func (h *AssetHandler) ListAssets(c *gin.Context) {
	snap := h.dispatcher.ListAssets()
	c.JSON(http.StatusOK, gin.H{"taken_at": snap.TakenAt, "assets": snap.Assets})
}
