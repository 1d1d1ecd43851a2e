package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func text(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	r.Register(NewDomainGroup("connector", "/connector").POST("", text("dispatched")))
	r.Register(NewDomainGroup("webhooks", "/webhooks").POST("/:marketplace/:id", text("received")))
	r.RegisterPublic(NewDomainGroup("oauth", "/oauth").GET("/callback", text("page")))
	r.Setup()

	assert.Equal(t, "dispatched", serve(engine, http.MethodPost, "/api/v1/connector").Body.String())
	assert.Equal(t, "received", serve(engine, http.MethodPost, "/api/v1/webhooks/shopify/abc").Body.String())
	assert.Equal(t, "page", serve(engine, http.MethodGet, "/oauth/callback").Body.String())
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/oauth/callback").Code)

	assert.ElementsMatch(t, []RouteInfo{
		{Method: http.MethodPost, Path: "/api/v1/connector"},
		{Method: http.MethodPost, Path: "/api/v1/webhooks/:marketplace/:id"},
		{Method: http.MethodGet, Path: "/oauth/callback"},
	}, r.Routes())
}

func TestDomainGroupMiddlewareIsScoped(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	guarded := NewDomainGroup("connector", "/connector").
		Use(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusUnauthorized)
		}).
		POST("", text("dispatched"))
	open := NewDomainGroup("webhooks", "/webhooks").POST("/:marketplace/:id", text("received"))
	r.Register(guarded).Register(open)
	r.Setup()

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, "/api/v1/connector").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/v1/webhooks/shopify/abc").Code)
}

func TestDomainGroupSubgroups(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	var order []string
	parent := NewDomainGroup("integrations", "/integrations").Use(func(c *gin.Context) {
		order = append(order, "parent")
		c.Next()
	})
	parent.GET("", text("list"))
	child := parent.Group("sync", "/sync").Use(func(c *gin.Context) {
		order = append(order, "child")
		c.Next()
	})
	child.Handle(http.MethodPut, "/:id", text("marked"))
	r.Register(parent)
	r.Setup()

	w := serve(engine, http.MethodPut, "/api/v1/integrations/sync/42")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "marked", w.Body.String())
	assert.Equal(t, []string{"parent", "child"}, order)

	assert.Equal(t, "integrations", parent.Name())
	assert.Equal(t, "/integrations", parent.Prefix())
	assert.Equal(t, []string{"/integrations", "/integrations/sync/:id"}, parent.Paths())
}
