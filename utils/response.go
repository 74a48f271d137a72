package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON body every API endpoint answers with. Code 0 means
// success; non-zero codes group errors by area (4xxxx client, 5xxxx server).
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success answers 200 with the payload wrapped in the envelope.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Error answers with an error envelope and no payload.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// Respond writes the envelope with an explicit HTTP status.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, Envelope{Code: code, Message: message, Data: data})
}
