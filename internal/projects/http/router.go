package http

import "github.com/gin-gonic/gin"

// Register attaches project, chat and todo routes. protect authenticates
// any role; admin additionally requires the admin role.
func (h *Handler) Register(r gin.IRouter, protect, admin gin.HandlerFunc) {
	r.GET("/project/:id", protect, h.get)
	r.POST("/chat/:projectId", protect, h.postMessage)

	projects := r.Group("/projects", protect, admin)
	projects.GET("", h.list)
	projects.POST("", h.create)
	projects.PUT("/:id", h.update)
	projects.PUT("/:id/stages/:index", h.setStage)

	todos := r.Group("/todos", protect, admin)
	todos.GET("", h.listTodos)
	todos.POST("", h.addTodo)
	todos.DELETE("/:id", h.deleteTodo)
}
