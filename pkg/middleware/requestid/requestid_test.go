package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithID(header string) (string, string) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(headerKey, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(headerKey), seen
}

func TestMiddlewareKeepsWellFormedID(t *testing.T) {
	echoed, seen := serveWithID("upload-7f3a")
	assert.Equal(t, "upload-7f3a", echoed)
	assert.Equal(t, "upload-7f3a", seen)
}

func TestMiddlewareReplacesBadID(t *testing.T) {
	for _, header := range []string{"", "has spaces", "<script>", strings.Repeat("a", maxLength+1)} {
		echoed, seen := serveWithID(header)
		_, err := uuid.Parse(echoed)
		require.NoError(t, err, header)
		assert.Equal(t, echoed, seen)
	}
}
