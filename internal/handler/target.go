package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/service"
	"github.com/daddykev/stardust-distro-sub000/pkg/response"
)

type TargetHandler struct {
	targets   *service.TargetService
	history   *service.HistoryService
	validator *validator.Validate
}

func NewTargetHandler(targets *service.TargetService, history *service.HistoryService, v *validator.Validate) *TargetHandler {
	return &TargetHandler{
		targets:   targets,
		history:   history,
		validator: v,
	}
}

// Put handles PUT /api/targets/:targetId
// @Summary      Create or replace a delivery target
// @Tags         Targets
// @Accept       json
// @Produce      json
// @Param        targetId path string true "Target ID"
// @Param        request body model.DeliveryTarget true "Target"
// @Success      200 {object} model.DeliveryTarget
// @Failure      400 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/targets/{targetId} [put]
func (h *TargetHandler) Put(c *fiber.Ctx) error {
	targetID := c.Params("targetId")
	if targetID == "" {
		return response.ValidationError(c, "Target ID is required", nil)
	}

	var target model.DeliveryTarget
	if err := c.BodyParser(&target); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&target); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.targets.Put(c.UserContext(), targetID, &target)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			return response.ValidationError(c, ve.Message, fiber.Map{ve.Field: "invalid"})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Get handles GET /api/targets/:targetId
// @Summary      Get a delivery target
// @Tags         Targets
// @Produce      json
// @Param        targetId path string true "Target ID"
// @Success      200 {object} model.DeliveryTarget
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/targets/{targetId} [get]
func (h *TargetHandler) Get(c *fiber.Ctx) error {
	result, err := h.targets.Get(c.UserContext(), c.Params("targetId"))
	if err != nil {
		if errors.Is(err, model.ErrTargetNotFound) {
			return response.NotFound(c, "Target not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// List handles GET /api/targets
// @Summary      List delivery targets
// @Tags         Targets
// @Produce      json
// @Success      200 {array} model.DeliveryTarget
// @Security     BearerAuth
// @Router       /api/targets [get]
func (h *TargetHandler) List(c *fiber.Ctx) error {
	targets, err := h.targets.List(c.UserContext())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"targets": targets})
}

// History handles GET /api/releases/:releaseId/deliveries
// @Summary      List completed deliveries of a release
// @Tags         Releases
// @Produce      json
// @Param        releaseId path string true "Release ID"
// @Param        limit query int false "Maximum records, newest first"
// @Success      200 {array} model.HistoryRecord
// @Security     BearerAuth
// @Router       /api/releases/{releaseId}/deliveries [get]
func (h *TargetHandler) History(c *fiber.Ctx) error {
	releaseID := c.Params("releaseId")
	if releaseID == "" {
		return response.ValidationError(c, "Release ID is required", nil)
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return response.ValidationError(c, "limit must be a non-negative integer", nil)
		}
		limit = n
	}

	records, err := h.history.List(c.UserContext(), releaseID, limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"releaseId": releaseID, "deliveries": records})
}
