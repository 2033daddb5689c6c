package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocare/internal/models"
)

func TestMiddleware_CountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/rest/v1/vehicles/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/rest/v1/vehicles/:id", "418"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rest/v1/vehicles/42", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/rest/v1/vehicles/:id", "418"))
	assert.Equal(t, before+1, after)
}

func TestAuthEvent(t *testing.T) {
	before := testutil.ToFloat64(authEvents.WithLabelValues(string(models.EventSignedOut)))
	AuthEvent(models.EventSignedOut)
	assert.Equal(t, before+1, testutil.ToFloat64(authEvents.WithLabelValues(string(models.EventSignedOut))))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())
	AuthEvent(models.EventSignedIn)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "autocare_auth_events_total")
}
