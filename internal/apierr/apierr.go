// Package apierr turns engine and storage errors into HTTP responses.
package apierr

import (
	"errors"

	"shefa-backend/internal/costing"
	"shefa-backend/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RetryAfterSeconds is sent with 503 responses for consistency failures.
const RetryAfterSeconds = "1"

// From maps err to a *fiber.Error. Errors it does not recognise become a 500
// whose message does not leak internals.
func From(err error) *fiber.Error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}

	var ve *costing.ValidationError
	switch {
	case errors.As(err, &ve):
		return fiber.NewError(fiber.StatusBadRequest, ve.Error())
	case errors.Is(err, costing.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, costing.ErrReferentialConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, database.ErrDuplicate):
		return fiber.NewError(fiber.StatusConflict, "a record with the same unique value already exists")
	case errors.Is(err, costing.ErrConsistencyFailure):
		return fiber.NewError(fiber.StatusServiceUnavailable, "concurrent update conflict, retry the request")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "unexpected server error")
}

func notFoundMessage(err error) string {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "not found"
	}
	return err.Error()
}

// Handler is the app-wide fiber.ErrorHandler. It renders {"error", "code"} and
// logs everything that ends up as a 5xx.
func Handler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		fe := From(err)
		if fe.Code >= fiber.StatusInternalServerError {
			log.WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": fe.Code,
			}).WithError(err).Error("request failed")
		}
		if errors.Is(err, costing.ErrConsistencyFailure) {
			c.Set(fiber.HeaderRetryAfter, RetryAfterSeconds)
		}
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
			"code":  fe.Code,
		})
	}
}
