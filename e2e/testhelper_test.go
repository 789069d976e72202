package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/handler"
	"github.com/daddykev/stardust-distro-sub000/internal/lock"
	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/metrics"
	"github.com/daddykev/stardust-distro-sub000/internal/middleware"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/service"
	"github.com/daddykev/stardust-distro-sub000/internal/store"
	ws "github.com/daddykev/stardust-distro-sub000/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// recordingEnqueuer captures tasks instead of pushing them to Redis.
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Queue: "deliveries"}, nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	redis    *miniredis.Miniredis
	targets  *store.TargetStore
	jobs     *store.JobStore
	enqueuer *recordingEnqueuer
	auth     *middleware.AuthMiddleware
}

// setupApp builds the same route tree as the server against an in-memory Redis
// and a recording task queue.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	log := logger.NewNop()
	validate := validator.New()
	enqueuer := &recordingEnqueuer{}

	jobs := store.NewJobStore(redisClient)
	targets := store.NewTargetStore(redisClient)
	history := store.NewHistoryStore(redisClient)
	locks := lock.NewRedisManager(redisClient, "e2e", 10*time.Minute, 24*time.Hour)

	deliveries := service.NewDeliveryService(jobs, targets, locks, enqueuer, metrics.New(prometheus.NewRegistry()), log, "deliveries")

	hub := ws.NewHub(log)
	go hub.Run()

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New()
	routes := &handler.Routes{
		APIAuth:     authMiddleware.Authenticate(),
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
		// Very high limit so tests don't get blocked
		DeliveriesPerHour: 10000,
		Deliveries:        handler.NewDeliveryHandler(deliveries, validate),
		Targets:           handler.NewTargetHandler(service.NewTargetService(targets), service.NewHistoryService(history), validate),
		Auth:              handler.NewAuthHandler(nil, testJWTSecret),
		Health:            handler.NewHealthHandler(redisClient, fiber.Map{"catalog": false, "storage": false}),
		Hub:               hub,
	}
	routes.Register(app)

	return &testApp{
		app:      app,
		redis:    mr,
		targets:  targets,
		jobs:     jobs,
		enqueuer: enqueuer,
		auth:     authMiddleware,
	}
}

// seedTarget stores an active SFTP target directly.
func (ta *testApp) seedTarget(t *testing.T, id string, active bool) {
	t.Helper()
	require.NoError(t, ta.targets.Put(context.Background(), &model.DeliveryTarget{
		ID:       id,
		Name:     "Test DSP",
		Protocol: model.ProtocolSFTP,
		Type:     model.TargetTypeDSP,
		Active:   active,
		Connection: model.Connection{
			Host:     "sftp.example.com",
			Username: "label",
			Password: "s3cret",
		},
	}))
}

// generateToken creates a legacy HMAC JWT token for test requests.
func (ta *testApp) generateToken(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := ta.auth.GenerateToken("test-user-123", "test@example.com", roles...)
	require.NoError(t, err)
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func (ta *testApp) doAuthRequest(t *testing.T, method, path, body string, roles ...string) *http.Response {
	t.Helper()
	resp, err := doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + ta.generateToken(t, roles...),
	})
	require.NoError(t, err)
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &result), "body: %s", body)
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
