package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/projects/service"
)

type postMessageReq struct {
	Text           string `json:"text"`
	AttachmentURL  string `json:"attachment_url"`
	AttachmentType string `json:"attachment_type"`
}

// postMessage handles POST /chat/:projectId
func (h *Handler) postMessage(c *gin.Context) {
	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	msg, err := h.chat.PostMessage(c.Request.Context(), auth.PrincipalFrom(c), c.Param("projectId"), service.PostMessageRequest{
		Text:           req.Text,
		AttachmentURL:  req.AttachmentURL,
		AttachmentType: req.AttachmentType,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "message": msg})
}
