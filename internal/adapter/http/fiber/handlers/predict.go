package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/ports"
	"github.com/botkit-ai/nlu-engine/internal/service/prediction"
)

type PredictHandler struct {
	prediction *prediction.Service
	log        *zap.Logger
}

func NewPredictHandler(predictionSvc *prediction.Service, log *zap.Logger) *PredictHandler {
	return &PredictHandler{
		prediction: predictionSvc,
		log:        log,
	}
}

// Predict classifies one sentence against a loaded model.
func (h *PredictHandler) Predict(c *fiber.Ctx) error {
	var req prediction.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.BotID == "" || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bot_id and text are required"})
	}

	out, err := h.prediction.Predict(c.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, prediction.ErrModelNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ports.ErrNoProvider), errors.Is(err, ports.ErrLangNotSupported):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		}
		h.log.Error("prediction failed",
			zap.String("bot_id", req.BotID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "prediction failed"})
	}
	return c.JSON(out)
}
