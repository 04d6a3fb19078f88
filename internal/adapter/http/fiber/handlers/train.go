// Package handlers exposes the training and prediction services over HTTP.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/service/prediction"
	"github.com/botkit-ai/nlu-engine/internal/service/training"
)

type TrainHandler struct {
	training    *training.Service
	prediction  *prediction.Service
	defaultSeed int64
	log         *zap.Logger
}

func NewTrainHandler(trainingSvc *training.Service, predictionSvc *prediction.Service, defaultSeed int64, log *zap.Logger) *TrainHandler {
	return &TrainHandler{
		training:    trainingSvc,
		prediction:  predictionSvc,
		defaultSeed: defaultSeed,
		log:         log,
	}
}

// Train runs one training to completion and loads the resulting model for
// serving. A run already in progress for the pair yields 409.
func (h *TrainHandler) Train(c *fiber.Ctx) error {
	var input domain.TrainInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if input.BotID == "" || input.Language == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bot_id and language are required"})
	}
	if input.Seed == 0 {
		input.Seed = h.defaultSeed
	}

	out, err := h.training.Train(c.Context(), &input)
	if err != nil {
		if errors.Is(err, training.ErrAlreadyTraining) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		h.log.Error("training failed",
			zap.String("bot_id", input.BotID),
			zap.String("language", input.Language),
			zap.Error(err),
		)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	if out.Errored {
		return c.Status(fiber.StatusInternalServerError).JSON(out)
	}

	if err := h.prediction.LoadModel(input.BotID, out.Artifacts); err != nil {
		h.log.Error("failed to load trained model",
			zap.String("bot_id", input.BotID),
			zap.String("language", input.Language),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "model could not be loaded"})
	}

	return c.JSON(out)
}

// Status reports the training session of the pair; never-trained pairs read
// as idle.
func (h *TrainHandler) Status(c *fiber.Ctx) error {
	session, err := h.training.Session(c.Context(), c.Params("botID"), c.Params("lang"))
	if err != nil {
		h.log.Error("failed to read training session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session unavailable"})
	}
	return c.JSON(session)
}

// Cancel aborts the running training of the pair.
func (h *TrainHandler) Cancel(c *fiber.Ctx) error {
	err := h.training.Cancel(c.Params("botID"), c.Params("lang"))
	if errors.Is(err, training.ErrNoActiveTraining) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}
