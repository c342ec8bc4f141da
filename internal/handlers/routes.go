package handlers

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the handlers mounted by RegisterRoutes.
type Handlers struct {
	Health     *HealthHandler
	AOIs       *AOIHandler
	Scenes     *SceneHandler
	Derivation *DerivationHandler
}

// RegisterRoutes mounts the health endpoints and the v1 API on router.
func RegisterRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", h.Health.Health)
	router.GET("/health/ready", h.Health.Ready)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", h.Health.Info)

		aois := v1.Group("/aois")
		{
			aois.POST("", h.AOIs.Create)
			aois.GET("", h.AOIs.List)
			aois.GET("/:id", h.AOIs.Get)
			aois.DELETE("/:id", h.AOIs.Delete)
			aois.GET("/:id/clips", h.Derivation.ClipsByAOI)
		}

		scenes := v1.Group("/scenes")
		{
			scenes.POST("", h.Scenes.Ingest)
			scenes.GET("", h.Scenes.List)
			scenes.GET("/:id", h.Scenes.Get)
			scenes.DELETE("/:id", h.Scenes.Delete)
		}

		clips := v1.Group("/clips")
		{
			clips.POST("/:id/render", h.Derivation.Render)
			clips.GET("/:id/visualization", h.Derivation.Visualization)
		}

		v1.POST("/derivations/run", h.Derivation.Run)
	}
}
