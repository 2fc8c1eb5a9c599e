// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scalpel

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the scalpel API routes.
//
// Description:
//
//	Registers all /v1/scalpel/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/scalpel/check - Check a proposed change against governance
//	GET  /v1/scalpel/config - Show the effective governance config
//	POST /v1/scalpel/mutation/validate - Run the mutation gate on a fix
//	GET  /v1/scalpel/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	scalpel := rg.Group("/scalpel")
	{
		scalpel.POST("/check", handlers.HandleCheck)
		scalpel.GET("/config", handlers.HandleConfig)
		scalpel.POST("/mutation/validate", handlers.HandleValidateMutation)
		scalpel.GET("/health", handlers.HandleHealth)
	}
}
