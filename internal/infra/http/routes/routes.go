// Package routes registers all HTTP routes for the grid API.
package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infrahttp "github.com/a11yscan/grid/internal/infra/http"
	"github.com/a11yscan/grid/internal/infra/http/handler"
)

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health *handler.HealthHandler
	Grid   *handler.GridHandler
	Egress *handler.EgressHandler
}

// Register wires every route onto the router.
func Register(r Router, h *Handlers) {
	// Probes and metrics outside the versioned API.
	r.GET("/health", h.Health.Health)
	r.GET("/ready", h.Health.Ready)
	r.GET("/metrics", promhttp.Handler().ServeHTTP)

	r.Group("/api/v1", func(api Router) {
		api.GET("/health", h.Health.Health)

		// Scheduling
		api.POST("/jobs", h.Grid.Enqueue)
		api.GET("/jobs/next", h.Grid.NextJob)
		api.GET("/jobs/{jobID}", h.Grid.GetJob)
		api.POST("/jobs/{jobID}/complete", h.Grid.Complete)
		api.POST("/jobs/{jobID}/fail", h.Grid.Fail)

		// Worker nodes
		api.GET("/nodes", h.Grid.ListNodes)
		api.GET("/nodes/{nodeID}", h.Grid.GetNode)
		api.POST("/nodes/{nodeID}/claim", h.Grid.Claim)

		// Grid status
		api.GET("/grid/status", h.Grid.Status)

		// Egress pool administration
		api.GET("/egress", h.Egress.List)
		api.POST("/egress", h.Egress.Add)
		api.DELETE("/egress/{address}", h.Egress.Remove)
	})
}
