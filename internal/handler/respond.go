package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billoffice/internal/apperr"
)

// respondError maps the error taxonomy onto HTTP statuses. Internal error
// text never reaches the client for unexpected failures.
func respondError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
