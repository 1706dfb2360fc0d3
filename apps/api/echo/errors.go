package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
	"github.com/trezcool/malipo/core/enrollment"
	"github.com/trezcool/malipo/core/payment"
	"github.com/trezcool/malipo/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errInvalidSignature     = echo.NewHTTPError(http.StatusBadRequest, "Invalid signature")
	errOrderNotSettleable   = echo.NewHTTPError(http.StatusBadRequest, "Order not found or already processed")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch cause {
		case payment.ErrNotConfigured:
			code = http.StatusServiceUnavailable
			message = cause.Error()
		case user.ErrNotFound, course.ErrNotFound, enrollment.ErrNotFound, payment.ErrNotFound:
			code = http.StatusNotFound
			message = cause.Error()
		case enrollment.ErrAlreadyEnrolled, payment.ErrAlreadyEnrolled:
			code = http.StatusConflict
			message = cause.Error()
		case payment.ErrFreeCourse:
			code = http.StatusBadRequest
			message = cause.Error()
		case payment.ErrInvalidSignature:
			code = http.StatusBadRequest
			message = errInvalidSignature.Message
		default:
			code, message = mapErrorTypes(err, cause, ctx, logger, translator)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func mapErrorTypes(
	err, cause error,
	ctx echo.Context,
	logger core.Logger,
	translator ut.Translator,
) (int, interface{}) {
	switch origErr := cause.(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, origErr.Message
		}
		if origErr.Internal != nil {
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
		}
		return origErr.Code, origErr.Message
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs
	case *core.ValidationError:
		if origErr.Fields != nil {
			fldErrs := make(map[string]string, len(origErr.Fields))
			for _, fErr := range origErr.Fields {
				fldErrs[fErr.Field] = fErr.Error
			}
			return http.StatusBadRequest, fldErrs
		}
		return http.StatusBadRequest, origErr.Error()
	case *payment.GatewayError:
		msg := "payment gateway unavailable"
		if logger != nil {
			logger.Error(msg, err)
		}
		return http.StatusBadGateway, msg
	default: // any other error is a server error
		msg := http.StatusText(http.StatusInternalServerError)
		if logger != nil {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)
		}
		return http.StatusInternalServerError, msg
	}
}
