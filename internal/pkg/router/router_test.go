package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConsultLedger/app/controllers"
	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

type memUsers struct {
	byKeyID map[string]*models.User
}

func (s *memUsers) Create(*models.User) error               { return nil }
func (s *memUsers) GetByEmail(string) (*models.User, error) { return nil, gorm.ErrRecordNotFound }
func (s *memUsers) Update(*models.User) error               { return nil }
func (s *memUsers) TouchAPIKeyUsage(uint, time.Time) error  { return nil }
func (s *memUsers) Delete(uint) error                       { return nil }
func (s *memUsers) List(int, int) ([]models.User, error)    { return nil, nil }
func (s *memUsers) Count() (int64, error)                   { return int64(len(s.byKeyID)), nil }
func (s *memUsers) Search(string) ([]models.User, error)    { return nil, nil }
func (s *memUsers) GetByID(id uint) (*models.User, error) {
	for _, u := range s.byKeyID {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memUsers) GetByAPIKeyID(id string) (*models.User, error) {
	if u, ok := s.byKeyID[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestRouterApp(t *testing.T) (*fiber.App, string) {
	t.Helper()

	prev := env.Env
	t.Cleanup(func() { env.Env = prev })
	env.Env = map[string]string{"API_RATE_LIMIT": "1000"}

	op, err := models.CreateOperator("Front Desk", "desk@example.com", models.ROLE_OPERATOR)
	require.NoError(t, err)
	op.ID = 7
	key, err := op.IssueAPIKey()
	require.NoError(t, err)
	users := &memUsers{byKeyID: map[string]*models.User{*op.APIKeyID: op}}

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Billing: controllers.NewBillingController(billing.NewService(billing.NewMemoryRepository())),
		Users:   users,
	})
	return app, key
}

func TestApiRouter(t *testing.T) {
	app, key := newTestRouterApp(t)

	t.Run("ping is public", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("v1 requires an api key", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/mappings", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("operator key lists mappings", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/mappings", nil)
		req.Header.Set("X-API-Key", key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("me returns the key owner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("X-API-Key", key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("queue monitor is not mounted without a queue", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs", nil)
		req.Header.Set("X-API-Key", key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("operator key cannot reach admin reports", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/discounts/summary", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestOpsRouter(t *testing.T) {
	app, _ := newTestRouterApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// metrics stay unmounted without a password
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRateLimitKey(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(rateLimitKey(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "0123456789abcdef0123456789abcdef.secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "key:0123456789abcdef0123456789abcdef", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ip:")
}
