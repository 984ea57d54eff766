package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"anonchat/internal/transport/http/middleware"
	"anonchat/internal/transport/http/response"
)

// Identity returns the caller's anonymous id. The identity middleware has
// already issued the cookie if it was missing.
func Identity(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "identity not resolved")
		return
	}
	response.OK(c, gin.H{"user_id": userID})
}
