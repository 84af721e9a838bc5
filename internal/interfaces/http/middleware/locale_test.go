package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/xtravels/backend/internal/infrastructure/store"
)

func TestLocale(t *testing.T) {
	router := gin.New()
	router.Use(Locale("en", "de", "fr"))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, store.LocaleFromContext(c.Request.Context()))
	})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", ""},
		{"exact match", "de", "de"},
		{"regional variant matches base", "fr-CH, fr;q=0.9", "fr"},
		{"quality order", "it;q=0.9, de;q=0.8", "de"},
		{"malformed", "%%%", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Body.String())
			assert.Equal(t, tt.want, w.Header().Get("Content-Language"))
		})
	}
}

func TestLocale_WithoutSupportedList(t *testing.T) {
	router := gin.New()
	router.Use(Locale())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetLocale(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Accept-Language", "pt-BR, en;q=0.5")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "pt-BR", w.Body.String())
}
