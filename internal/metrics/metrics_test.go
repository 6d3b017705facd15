package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrument_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Instrument())
	r.GET("/api/users/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/users/:id", "204"))
	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/users/:id", "204"))
	assert.Equal(t, 3.0, after-before)
}

func TestAuthzDecision(t *testing.T) {
	before := testutil.ToFloat64(authzDecisions.WithLabelValues("deny", "no_identity"))
	AuthzDecision(false, "no_identity")
	assert.Equal(t, 1.0, testutil.ToFloat64(authzDecisions.WithLabelValues("deny", "no_identity"))-before)
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
