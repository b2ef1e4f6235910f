package http

import (
	"github.com/gin-gonic/gin"

	"github.com/phishguard/aegis/service"
)

// SetupRouter sets up the Gin router with the session endpoints.
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := NewAuthHandlers(authService)

	v1 := router.Group("/api/v1")

	v1.GET("/healthcheck", handlers.Healthcheck)

	users := v1.Group("/users")
	{
		users.POST("/register", handlers.Register)
		users.POST("/login", handlers.Login)
		users.POST("/refresh-access-token", handlers.RefreshAccessToken)
		users.POST("/forgot-password", handlers.ForgotPassword)
		users.POST("/reset-password/:token", handlers.ResetPassword)
		users.GET("/verify-email/:token", handlers.VerifyEmail)
	}

	protected := v1.Group("/users")
	protected.Use(AuthMiddleware(authService))
	{
		protected.POST("/logout", handlers.Logout)
		protected.POST("/change-password", handlers.ChangePassword)
		protected.POST("/resend-email-verification", handlers.ResendVerification)
		protected.POST("/current-user", handlers.CurrentUser)
	}

	return router
}
