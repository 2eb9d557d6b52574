package api

import (
	"errors"
	"strconv"

	"github.com/boubkhaled/streampump/internal/models"
	"github.com/boubkhaled/streampump/internal/services/transfer"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type TransferHandler struct {
	service *transfer.Service
}

func NewTransferHandler(service *transfer.Service) *TransferHandler {
	return &TransferHandler{service: service}
}

// CreateTransfer accepts a transfer request and enqueues it.
func (h *TransferHandler) CreateTransfer(c *fiber.Ctx) error {
	var req models.CreateTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	t, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(t)
}

// GetTransfer returns a single transfer with live counters when available.
func (h *TransferHandler) GetTransfer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid transfer id",
		})
	}

	t, err := h.service.Get(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(t)
}

// ListTransfers returns the most recent transfers.
func (h *TransferHandler) ListTransfers(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))

	transfers, err := h.service.List(c.Context(), limit)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"transfers": transfers,
		"count":     len(transfers),
	})
}

// CancelTransfer aborts a queued or running transfer.
func (h *TransferHandler) CancelTransfer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid transfer id",
		})
	}

	if err := h.service.Cancel(c.Context(), id); err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "cancelling",
	})
}

// errorResponse maps service errors onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
	}

	sanitized := models.SanitizeError(err)
	return c.Status(sanitized.GetStatusCode()).JSON(fiber.Map{
		"error": sanitized.Message,
	})
}
