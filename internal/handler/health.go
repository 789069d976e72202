package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/pkg/response"
)

// HealthHandler reports Redis reachability and which optional integrations
// are configured.
type HealthHandler struct {
	redis    redis.Cmdable
	services fiber.Map
}

func NewHealthHandler(rdb redis.Cmdable, services fiber.Map) *HealthHandler {
	return &HealthHandler{redis: rdb, services: services}
}

// Check handles GET /health
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Failure      503 {object} map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	body := fiber.Map{"status": "ok", "services": h.services}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		body["status"] = "degraded"
		body["redis"] = err.Error()
		return response.Unavailable(c, body)
	}

	return response.OK(c, body)
}
