package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/daddykev/stardust-distro-sub000/internal/middleware"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/service"
	"github.com/daddykev/stardust-distro-sub000/pkg/response"
)

type DeliveryHandler struct {
	service   *service.DeliveryService
	validator *validator.Validate
}

func NewDeliveryHandler(svc *service.DeliveryService, v *validator.Validate) *DeliveryHandler {
	return &DeliveryHandler{
		service:   svc,
		validator: v,
	}
}

// Trigger handles POST /api/deliveries
// @Summary      Trigger delivery
// @Description  Queue delivery of a release to a target. Repeated intents return the existing job.
// @Tags         Deliveries
// @Accept       json
// @Produce      json
// @Param        request body model.TriggerDeliveryRequest true "Delivery request"
// @Success      202 {object} model.TriggerDeliveryResponse
// @Success      200 {object} model.TriggerDeliveryResponse "duplicate"
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/deliveries [post]
func (h *DeliveryHandler) Trigger(c *fiber.Ctx) error {
	var req model.TriggerDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Trigger(c.UserContext(), &req, middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	switch result.Code {
	case model.TriggerAccepted:
		return response.Accepted(c, result)
	case model.TriggerRejected:
		return response.ValidationError(c, result.Message, nil)
	case model.TriggerDuplicate:
		return response.Duplicate(c, result)
	default:
		return response.OK(c, result)
	}
}

// Status handles GET /api/deliveries/:jobId
// @Summary      Get delivery status
// @Tags         Deliveries
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.DeliveryStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/deliveries/{jobId} [get]
func (h *DeliveryHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// Logs handles GET /api/deliveries/:jobId/logs
// @Summary      Get delivery audit log
// @Tags         Deliveries
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {array} model.LogEntry
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/deliveries/{jobId}/logs [get]
func (h *DeliveryHandler) Logs(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	logs, err := h.service.GetLogs(c.UserContext(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, fiber.Map{"jobId": jobID, "logs": logs})
}

// Receipt handles GET /api/deliveries/:jobId/receipt
// @Summary      Get delivery receipt
// @Tags         Deliveries
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Receipt
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/deliveries/{jobId}/receipt [get]
func (h *DeliveryHandler) Receipt(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	receipt, err := h.service.GetReceipt(c.UserContext(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, receipt)
}

// Cancel handles POST /api/deliveries/:jobId/cancel
// @Summary      Cancel delivery
// @Description  Cancel a delivery that has not started yet
// @Tags         Deliveries
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.DeliveryCancelResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/deliveries/{jobId}/cancel [post]
func (h *DeliveryHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.UserContext(), jobID, middleware.GetUserID(c))
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, result)
}

func jobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrNotCancellable):
		return response.Conflict(c, "Only queued deliveries can be cancelled")
	case errors.Is(err, model.ErrNoReceipt):
		return response.Conflict(c, "Delivery has not completed")
	default:
		return response.ServiceError(c, err.Error())
	}
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
