package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/daddykev/stardust-distro-sub000/internal/auth"
	"github.com/daddykev/stardust-distro-sub000/internal/middleware"
	ws "github.com/daddykev/stardust-distro-sub000/internal/websocket"
)

// Routes wires the handlers into a Fiber app.
type Routes struct {
	APIAuth           fiber.Handler
	RateLimiter       *middleware.RateLimiter
	DeliveriesPerHour int

	Deliveries *DeliveryHandler
	Targets    *TargetHandler
	Auth       *AuthHandler
	Health     *HealthHandler
	Hub        *ws.Hub

	// Metrics serves the Prometheus registry. Optional.
	Metrics fiber.Handler
}

// Register mounts every route on app.
func (r *Routes) Register(app *fiber.App) {
	app.Get("/health", r.Health.Check)
	if r.Metrics != nil {
		app.Get("/metrics", r.Metrics)
	}

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", r.Auth.Verify)

	api := app.Group("/api", r.APIAuth)

	deliveries := api.Group("/deliveries")
	deliveries.Post("/", r.RateLimiter.DeliveryLimit(r.DeliveriesPerHour), r.Deliveries.Trigger)
	deliveries.Get("/:jobId", r.Deliveries.Status)
	deliveries.Get("/:jobId/logs", r.Deliveries.Logs)
	deliveries.Get("/:jobId/receipt", r.Deliveries.Receipt)
	deliveries.Post("/:jobId/cancel", r.Deliveries.Cancel)

	targets := api.Group("/targets")
	targets.Get("/", r.Targets.List)
	targets.Get("/:targetId", r.Targets.Get)
	targets.Put("/:targetId", middleware.RequireRole(auth.RoleAdmin), r.Targets.Put)

	api.Get("/releases/:releaseId/deliveries", r.Targets.History)

	// Live audit log of one delivery
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/deliveries/:jobId", websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, c.Params("jobId"))
	}))
}
