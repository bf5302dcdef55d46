package httputil

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/submissions"
	"github.com/ncecere/viberank/internal/validation"
)

const storageUnavailable = "database operation failed, please try again in a moment"

// WriteServiceError maps submission and validation errors to HTTP responses.
func WriteServiceError(c *fiber.Ctx, err error) error {
	if verr, ok := validation.AsError(err); ok {
		return WriteError(c, fiber.StatusBadRequest, verr.Message)
	}
	var storageErr *submissions.StorageError
	switch {
	case errors.As(err, &storageErr):
		slog.ErrorContext(UserContext(c), "storage failure",
			slog.String("path", c.Path()),
			slog.String("op", storageErr.Op),
			slog.String("error", storageErr.Err.Error()))
		return WriteError(c, fiber.StatusServiceUnavailable, storageUnavailable)
	case errors.Is(err, submissions.ErrNotFound), errors.Is(err, submissions.ErrProfileNotFound):
		return WriteError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, submissions.ErrForbidden):
		return WriteError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, submissions.ErrAlreadyVerified):
		return WriteError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, submissions.ErrInvalidPattern):
		return WriteError(c, fiber.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(UserContext(c), "request failed", slog.String("path", c.Path()), slog.String("error", err.Error()))
		return WriteError(c, fiber.StatusInternalServerError, "internal error")
	}
}
