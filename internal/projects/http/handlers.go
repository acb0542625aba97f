package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

func (h *Handler) get(c *gin.Context) {
	agg, err := h.projects.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("ETag", strconv.Quote(strconv.FormatInt(agg.Details.Version, 10)))
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"details":  agg.Details,
		"stages":   agg.Stages,
		"messages": agg.Messages,
	})
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.projects.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) create(c *gin.Context) {
	var req domain.NewProject
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	creds, err := h.projects.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": creds.ID, "password": creds.Password})
}

func (h *Handler) update(c *gin.Context) {
	var req domain.ProjectUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	if req.ExpectedVersion == nil {
		if v, ok := ifMatchVersion(c); ok {
			req.ExpectedVersion = &v
		}
	}

	version, err := h.projects.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": version})
}

type stageReq struct {
	Done *bool `json:"done"`
}

func (h *Handler) setStage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid stage index"})
		return
	}

	var req stageReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Done == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	version, err := h.projects.SetStage(c.Request.Context(), c.Param("id"), index, *req.Done)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": version})
}

// ifMatchVersion reads a version from If-Match, with or without quotes.
func ifMatchVersion(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
