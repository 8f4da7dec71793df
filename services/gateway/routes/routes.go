// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinelog/cinelog/services/gateway/handlers"
	"github.com/cinelog/cinelog/services/gateway/middleware"
	"github.com/cinelog/cinelog/services/store"
)

func SetupRoutes(router *gin.Engine, s *store.Store, hub *handlers.Hub, limiter *middleware.RateLimiter) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", handlers.Signup(s))
			auth.POST("/login", handlers.Login(s))
		}

		trackingGroup := v1.Group("/tracking")
		if limiter != nil {
			trackingGroup.Use(limiter.Middleware())
		}
		{
			trackingGroup.POST("/events", handlers.IngestEvent(s, hub))
			trackingGroup.GET("/live", handlers.LiveEvents(hub))
		}

		users := v1.Group("/users")
		{
			users.GET("/:userId/library", handlers.GetLibrary(s))
			users.POST("/:userId/favorites", handlers.AddFavorite(s))
			users.POST("/:userId/journal", handlers.AddJournalEntry(s))
		}
	}
}
