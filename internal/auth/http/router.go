package http

import "github.com/gin-gonic/gin"

// Register attaches the login routes. protect guards logout and limit
// throttles the credential endpoints.
func (h *Handler) Register(rg *gin.RouterGroup, limit, protect gin.HandlerFunc) {
	rg.POST("/admin", limit, h.LoginAdmin)
	rg.POST("/client", limit, h.LoginClient)
	rg.POST("/logout", protect, h.Logout)
}
