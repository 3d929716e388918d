package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/services"
)

// serviceError translates engine errors into HTTP errors.
func serviceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidExpiration),
		errors.Is(err, services.ErrSelfTransfer),
		errors.Is(err, services.ErrDescriptionRequired),
		errors.Is(err, services.ErrOrderNumberRequired):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInsufficientBalance):
		return fiber.NewError(fiber.StatusPaymentRequired, err.Error())
	case errors.Is(err, services.ErrTokenNotFound),
		errors.Is(err, services.ErrCustomerNotFound),
		errors.Is(err, services.ErrMerchantNotFound),
		errors.Is(err, services.ErrAdminNotFound),
		errors.Is(err, services.ErrWalletNotFound),
		errors.Is(err, services.ErrCashOutNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrTokenAlreadyUsed),
		errors.Is(err, services.ErrCashOutNotPending),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrTokenExpired):
		return fiber.NewError(fiber.StatusGone, err.Error())
	case errors.Is(err, services.ErrAllocationConflict):
		return fiber.NewError(fiber.StatusServiceUnavailable, "busy, please try again")
	}
	return err
}

// ErrorHandler renders every error as the standard failure envelope.
// Unexpected errors are logged and hidden behind a 500.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}
