package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

func (h *Handler) listTodos(c *gin.Context) {
	items, err := h.todos.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "todos": items})
}

type todoReq struct {
	Text string `json:"text"`
}

func (h *Handler) addTodo(c *gin.Context) {
	var req todoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	todo, err := h.todos.Add(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "todo": todo})
}

func (h *Handler) deleteTodo(c *gin.Context) {
	err := h.todos.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "todo not found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
