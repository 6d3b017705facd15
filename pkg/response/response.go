package response

import "github.com/gin-gonic/gin"

// Response is the envelope of every API answer. Message is always safe to show to
// the caller; internal error detail never goes here.
type Response struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

func Success(statusCode int, message string, data any) Response {
	return Response{
		Success:    true,
		StatusCode: statusCode,
		Message:    message,
		Data:       data,
	}
}

// Error builds a failure envelope. code is a stable machine-readable reason such as
// "INVALID_CREDENTIALS"; it may be empty.
func Error(statusCode int, message, code string) Response {
	return Response{
		StatusCode: statusCode,
		Message:    message,
		Error:      code,
	}
}

func OK(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, Success(statusCode, message, data))
}

func Fail(c *gin.Context, statusCode int, message, code string) {
	c.JSON(statusCode, Error(statusCode, message, code))
}

// Abort is Fail for middleware: later handlers in the chain do not run.
func Abort(c *gin.Context, statusCode int, message, code string) {
	c.AbortWithStatusJSON(statusCode, Error(statusCode, message, code))
}
