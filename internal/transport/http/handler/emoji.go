package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"anonchat/internal/render"
	"anonchat/internal/transport/http/response"
)

type ExpandEmojiRequest struct {
	Text string `json:"text"`
}

// ExpandEmoji backs the page's emoji picker: it returns the draft with known
// shortcodes replaced. Nothing is stored; the user still sends the result.
func ExpandEmoji(c *gin.Context) {
	var req ExpandEmojiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	response.OK(c, gin.H{"text": render.ExpandShortcodes(req.Text)})
}
