package http

import "github.com/pmsystem/pmdash/internal/projects/service"

type Handler struct {
	projects *service.ProjectService
	chat     *service.ChatService
	todos    *service.TodoService
}

func New(projects *service.ProjectService, chat *service.ChatService, todos *service.TodoService) *Handler {
	return &Handler{projects: projects, chat: chat, todos: todos}
}
