package console

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"rocket-console/internal/auth"
	"rocket-console/internal/logger"
	"rocket-console/internal/transport"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownPageError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_PAGE",
		Status:  404,
		Message: fmt.Sprintf("Unknown page: %s", name),
	}
}

func RowNotFoundError(page, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s row %s is not on the current page", page, id),
	}
}

func NotAllowedError(page, action string) *AppError {
	return &AppError{
		Code:    "NOT_ALLOWED",
		Status:  403,
		Message: fmt.Sprintf("%s is not enabled for %s", action, page),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

var errSessionExpired = &AppError{Code: "SESSION_EXPIRED", Status: 401, Message: transport.MsgSessionExpired}

// ErrorHandler renders JSON for ops routes and an HTML error page otherwise.
// Unauthenticated HTML requests are sent to the sign-in page.
func ErrorHandler(views *Views, log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if errors.Is(err, transport.ErrSessionExpired) {
			err = errSessionExpired
		}

		appErr := &AppError{Code: "INTERNAL_ERROR", Status: fiber.StatusInternalServerError, Message: "Internal server error"}
		var fiberErr *fiber.Error
		var ae *AppError
		switch {
		case errors.As(err, &ae):
			appErr = ae
		case errors.As(err, &fiberErr):
			appErr = &AppError{Code: codeFor(fiberErr.Code), Status: fiberErr.Code, Message: fiberErr.Message}
		default:
			log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}

		if wantsJSON(c) {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}
		if appErr.Status == fiber.StatusUnauthorized {
			auth.ClearCookie(c)
			target := "/login"
			if appErr == errSessionExpired {
				target += "?expired=1"
			}
			return c.Redirect(target, fiber.StatusSeeOther)
		}
		return views.Render(c, appErr.Status, "error", errorView{baseView: baseView{Title: "Error"}, Err: appErr})
	}
}

func wantsJSON(c *fiber.Ctx) bool {
	p := c.Path()
	return strings.HasPrefix(p, "/_pages") || strings.HasPrefix(p, "/health") ||
		strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	default:
		return "ERROR"
	}
}
