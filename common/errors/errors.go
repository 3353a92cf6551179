package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	// Fields carries machine-readable diagnostics rendered next to the message.
	Fields map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// With attaches a diagnostic field and returns the same error.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// Body builds the JSON response body: {error, details?, ...fields}.
func (e *Error) Body() gin.H {
	body := gin.H{"error": e.Message}
	if e.Err != nil {
		body["details"] = e.Err.Error()
	}
	for k, v := range e.Fields {
		body[k] = v
	}
	return body
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e.Body())
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// BadRequest wraps err as a 400 with the given message.
func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

// Internal wraps err as a 500 with the given message.
func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, message, err)
}

// From converts any error into an *Error, defaulting to 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// Respond writes err to the gin context as JSON and aborts the chain.
func Respond(c *gin.Context, err error) {
	appErr := From(err)
	c.AbortWithStatusJSON(appErr.Code, appErr.Body())
}

// ErrorMiddleware renders the last error attached to the gin context.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
		}
	}
}
