package util

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"household-ledger/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// LoggerKey is the gin context key holding the request-scoped *logrus.Entry.
const LoggerKey = "logger"

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// FieldError is one entry of the validation context payload.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Success writes a 200 envelope.
func Success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

// Fail maps err onto the taxonomy and writes the error envelope. Internal
// errors are logged and answered without detail.
func Fail(c *gin.Context, err error) {
	ae := apperr.From(err)
	if ae.Code == apperr.CodeInternal {
		Logger(c).WithError(err).Error("request failed")
	}
	c.JSON(ae.Status(), errorEnvelope{
		Error: errorBody{
			Code:    ae.Code,
			Message: ae.Message,
			Context: ae.Context,
		},
	})
}

// Abort is Fail for middleware: the handler chain stops here.
func Abort(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}

// Logger returns the request-scoped logger, or the standard logger outside
// of a request.
func Logger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(LoggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// BindJSON binds the body into req and converts binding failures into a
// validation error with field-level context.
func BindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return BindingError(err)
	}
	return nil
}

// BindingError converts a gin binding error.
func BindingError(err error) *apperr.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field: fe.Field(),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
		}
		return apperr.Validation("invalid request body").WithContext(fields)
	}
	return apperr.Validation("malformed request body")
}

// SetupValidator makes validation errors report JSON field names.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}
