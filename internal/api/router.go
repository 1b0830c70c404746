// Package api expõe a API HTTP somente leitura com saúde, métricas, ofertas
// distribuídas, produtos e o estado da distribuição.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bot-ofertas/internal/logger"
)

const corsMaxAgeHours = 12

// NewRouter monta as rotas da API
func NewRouter(h *Handler, metrics http.Handler, log logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          corsMaxAgeHours * time.Hour,
	}))
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", h.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")
	api.GET("/deals", h.ListDeals)
	api.GET("/products/pending", h.ListPending)
	api.GET("/products/:asin", h.GetProduct)
	api.GET("/status", h.Status)

	return router
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("metodo", method),
			logger.String("caminho", path),
			logger.Int("status", status),
			logger.String("ip", c.ClientIP()),
			logger.Duration("duracao", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.Strings("erros", c.Errors.Errors()))
		}

		// health e métricas são consultados o tempo todo
		if path == "/health" || path == "/metrics" {
			log.Debug("requisição HTTP", fields...)
			return
		}
		log.Info("requisição HTTP", fields...)
	}
}
