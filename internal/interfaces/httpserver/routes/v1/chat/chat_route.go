package chat

import (
	"github.com/gin-gonic/gin"

	"bastion-server/internal/interfaces/httpserver/handlers/chathandler"
)

type ChatRoute struct {
	chatHandler *chathandler.ChatHandler
}

func NewChatRoute(chatHandler *chathandler.ChatHandler) *ChatRoute {
	return &ChatRoute{chatHandler: chatHandler}
}

func (chatRoute *ChatRoute) RegisterRouter(router gin.IRouter) {
	router.POST("/chat", chatRoute.chatHandler.PostChat)
	router.GET("/chats/:chat_id", chatRoute.chatHandler.GetChat)
}
