package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	allowHeaders  = strings.Join([]string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"}, ", ")
	allowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
	exposeHeaders = strings.Join([]string{"Content-Disposition", "X-Request-ID"}, ", ")
)

// New returns a CORS middleware for the provided origins. An empty list allows every origin.
// Content-Disposition is exposed so browsers can name downloaded templates and report cards.
func New(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if origin := c.GetHeader("Origin"); origin != "" {
			if allowed(originSet, origin) {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		} else if len(originSet) == 0 {
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowed(originSet map[string]struct{}, origin string) bool {
	if len(originSet) == 0 {
		return true
	}
	_, ok := originSet[strings.TrimRight(origin, "/")]
	return ok
}
