package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

func Success(c *gin.Context, data gin.H) {
	c.JSON(200, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// FromError maps domain errors onto HTTP status codes.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrUnsupportedMedia):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrPayloadTooLarge):
		Error(c, http.StatusRequestEntityTooLarge, err.Error())
	default:
		Error(c, http.StatusInternalServerError, err.Error())
	}
}
