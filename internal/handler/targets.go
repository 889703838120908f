package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
)

// CreateTarget handles the creation of a review target.
// @Summary Create target
// @Tags targets
// @Accept json
// @Produce json
// @Param target body models.CreateTargetRequest true "Target data"
// @Success 201 {object} models.TargetResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/targets [post]
func (h *Handler) CreateTarget(c *gin.Context) {
	var req models.CreateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	target, err := h.coord.CreateTarget(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "failed to create target")
		return
	}
	c.JSON(http.StatusCreated, models.TargetResponse{Data: *target})
}

// GetTarget returns the local view of a target.
// @Summary Get target
// @Tags targets
// @Produce json
// @Param id path string true "Target ID"
// @Success 200 {object} models.TargetResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/targets/{id} [get]
func (h *Handler) GetTarget(c *gin.Context) {
	id := c.Param("id")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	target, err := h.coord.Target(id)
	if err != nil {
		h.fail(c, err, "failed to read target")
		return
	}
	c.JSON(http.StatusOK, models.TargetResponse{Data: *target})
}

// DeleteTarget deletes a target with all of its comments.
// @Summary Delete target
// @Tags targets
// @Param id path string true "Target ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/targets/{id} [delete]
func (h *Handler) DeleteTarget(c *gin.Context) {
	id := c.Param("id")

	if err := h.coord.DeleteTarget(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to delete target")
		return
	}
	h.release(id)
	c.Status(http.StatusNoContent)
}

// AddAsset attaches a page, image or video asset.
func (h *Handler) AddAsset(c *gin.Context) {
	id := c.Param("id")

	var req models.AddAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	asset, err := h.coord.AddSubAsset(c.Request.Context(), id, models.SubAsset{
		Name:     req.Name,
		Path:     req.Path,
		URL:      req.URL,
		Duration: req.Duration,
	})
	if err != nil {
		h.fail(c, err, "failed to add asset")
		return
	}
	c.JSON(http.StatusCreated, models.SubAssetResponse{Data: *asset})
}

// RemoveAsset detaches a sub-asset and deletes the comments in its scope.
func (h *Handler) RemoveAsset(c *gin.Context) {
	id, assetID := c.Param("id"), c.Param("assetId")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	if err := h.coord.RemoveSubAsset(c.Request.Context(), id, assetID); err != nil {
		h.fail(c, err, "failed to remove asset")
		return
	}
	h.logger.Info("Removed asset", zap.String("target_id", id), zap.String("asset_id", assetID))
	c.Status(http.StatusNoContent)
}

// ToggleApproval flips the approval of one sub-asset.
// @Summary Toggle sub-asset approval
// @Tags approvals
// @Produce json
// @Param id path string true "Target ID"
// @Param assetId path string true "Page, image or video asset ID"
// @Success 200 {object} models.ApprovalResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/targets/{id}/approvals/{assetId} [post]
func (h *Handler) ToggleApproval(c *gin.Context) {
	h.toggleApproval(c, c.Param("assetId"))
}

// ToggleTargetApproval flips the whole-target approval of a target without
// sub-assets.
func (h *Handler) ToggleTargetApproval(c *gin.Context) {
	h.toggleApproval(c, "")
}

func (h *Handler) toggleApproval(c *gin.Context, assetID string) {
	id := c.Param("id")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	approved, err := h.coord.ToggleApproval(c.Request.Context(), id, assetID)
	if err != nil {
		h.fail(c, err, "failed to toggle approval")
		return
	}
	progress, err := h.coord.Progress(id)
	if err != nil {
		h.fail(c, err, "failed to compute progress")
		return
	}
	c.JSON(http.StatusOK, models.ApprovalResponse{Data: models.ApprovalState{
		SubAssetID: assetID,
		Approved:   approved,
		Progress:   progress,
	}})
}

// Progress returns the approval progress of a target.
func (h *Handler) Progress(c *gin.Context) {
	id := c.Param("id")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	progress, err := h.coord.Progress(id)
	if err != nil {
		h.fail(c, err, "failed to compute progress")
		return
	}
	c.JSON(http.StatusOK, models.ProgressResponse{Data: progress})
}
