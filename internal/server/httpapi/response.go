package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// BaseResponse is the envelope of every JSON body the API returns.
type BaseResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

func success(code int, data map[string]any, message string) BaseResponse {
	if data == nil {
		data = map[string]any{}
	}
	data["code"] = code
	return BaseResponse{Success: true, Data: data, Message: message}
}

// apiError is a failure that already knows its status and body.
type apiError struct {
	Status  int
	Data    map[string]any
	Message string
}

func (e *apiError) Error() string { return e.Message }

func failure(status int, data map[string]any, message string) *apiError {
	if data == nil {
		data = map[string]any{}
	}
	data["code"] = status
	return &apiError{Status: status, Data: data, Message: message}
}

func unauthorized(expired bool) *apiError {
	if expired {
		return failure(http.StatusUnauthorized, map[string]any{"is_expired": true}, common.MsgAccessTokenExpired)
	}
	return failure(http.StatusUnauthorized, map[string]any{"is_expired": false}, common.MsgAuthenticationFailed)
}

// toAPIError maps service and transport errors onto response bodies.
func toAPIError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]any, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = "failed on " + fe.Tag()
		}
		return failure(http.StatusBadRequest, map[string]any{"errors": fields}, "Validation failed.")
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return failure(he.Code, nil, msg)
	}

	switch {
	case errors.Is(err, common.ErrRefreshExpired):
		return failure(http.StatusUnauthorized, map[string]any{"is_expired": true}, "Refresh token has expired. Please log in again.")
	case errors.Is(err, common.ErrRefreshInvalid):
		return failure(http.StatusUnauthorized, map[string]any{"is_expired": false}, "Invalid refresh token. Please log in again.")
	case errors.Is(err, common.ErrTokenUnreadable):
		return failure(http.StatusBadRequest, nil, "Token could not be read.")
	case errors.Is(err, common.ErrAccessTokenExpired):
		return unauthorized(true)
	case errors.Is(err, common.ErrAuthRequired),
		errors.Is(err, common.ErrAccessTokenInvalid),
		errors.Is(err, common.ErrWrongTokenType):
		return unauthorized(false)
	case errors.Is(err, common.ErrorUnauthorized):
		return failure(http.StatusUnauthorized, map[string]any{"error": "username or password invalid"}, "Authentication failed. Please check your credentials.")
	case errors.Is(err, common.ErrorInvalidInput):
		return failure(http.StatusBadRequest, nil, "Invalid input")
	case errors.Is(err, common.ErrorAlreadyExists):
		return failure(http.StatusConflict, nil, "User already exists.")
	case errors.Is(err, common.ErrStoreUnavailable):
		return failure(http.StatusServiceUnavailable, nil, "Service temporarily unavailable. Please retry.")
	default:
		return failure(http.StatusInternalServerError, nil, "Internal server error.")
	}
}

func errorHandler(logger logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ae := toAPIError(err)

		ctx := c.Request().Context()
		switch {
		case ae.Status >= http.StatusInternalServerError:
			logger.Error(ctx, "request failed", "path", c.Path(), "status", ae.Status, "error", err.Error())
		case ae.Status == http.StatusUnauthorized:
			logger.Info(ctx, "request unauthorized", "path", c.Path(), "error", err.Error())
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(ae.Status)
			return
		}
		_ = c.JSON(ae.Status, BaseResponse{Success: false, Data: ae.Data, Message: ae.Message})
	}
}
