package auth

import "github.com/gin-gonic/gin"

func RegisterRoute(r *gin.Engine, handler *authHandler) {
	r.POST("/auth/signup", handler.SignupHandler)
	r.POST("/auth/login", handler.LoginHandler)
	r.POST("/auth/logout", handler.LogoutHandler)
	r.POST("/auth/refresh", handler.RefreshSessionHandler)
}
