package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"billoffice/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *handler.AuthHandler,
	documentHandler *handler.DocumentHandler,
	paymentHandler *handler.PaymentHandler,
	jwtSecret string,
	logger *zap.Logger,
	db *pgxpool.Pool,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/documents", documentHandler.Create)
		auth.GET("/documents", documentHandler.List)
		auth.GET("/documents/:id", documentHandler.Get)
		auth.PATCH("/documents/:id", documentHandler.Update)
		auth.DELETE("/documents/:id", documentHandler.Delete)

		auth.GET("/documents/:id/pdf", documentHandler.DownloadPDF)
		auth.PUT("/documents/:id/pdf", documentHandler.ReplacePDF)

		auth.POST("/documents/:id/payments", paymentHandler.Record)
		auth.GET("/documents/:id/payments", paymentHandler.List)

		auth.POST("/documents/:id/attachments", documentHandler.Attach)
		auth.GET("/documents/:id/attachments/:filename", documentHandler.DownloadAttachment)
		auth.DELETE("/documents/:id/attachments/:filename", documentHandler.RemoveAttachment)
	}

	return &Router{Engine: r}
}
