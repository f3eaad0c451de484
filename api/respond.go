package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rankpro/backend/analyzer"
)

// urlRequest is the body of every POST route
type urlRequest struct {
	URL *string `json:"url"`
}

// bindURL reads {url} from the body and normalizes it
func bindURL(c *gin.Context) (string, bool) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == nil {
		respondMessage(c, http.StatusBadRequest, "url is required and must be a string")
		return "", false
	}
	target, err := analyzer.NormalizeURL(*req.URL)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "url must be a valid URL")
		return "", false
	}
	return target, true
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// respondError maps pipeline errors to a status and a {message, detail} body
func respondError(c *gin.Context, err error) {
	c.Error(err)

	var appErr *analyzer.AppError
	if !errors.As(err, &appErr) {
		respondMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	body := gin.H{"message": appErr.Message}
	if detail := appErr.Detail(); detail != "" {
		body["detail"] = detail
	}
	c.JSON(appErr.StatusCode(), body)
}
