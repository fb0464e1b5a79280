package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	corsAllowHeaders = []string{
		"authorization", "x-client-info", "apikey", "content-type",
		"x-webhook-route", "x-webhook-signature", "x-idempotency-key", "dd-signature",
	}
	corsAllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
)

// CORS allows browser callers from any origin. Preflight requests are
// answered with 200 and an empty body and never reach a handler.
func CORS() gin.HandlerFunc {
	browser := cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowHeaders:              corsAllowHeaders,
		AllowMethods:              corsAllowMethods,
		OptionsResponseStatusCode: http.StatusOK,
	})

	return func(c *gin.Context) {
		// cors only acts on requests carrying Origin. An OPTIONS without one
		// still gets the same answer.
		if c.Request.Method == http.MethodOptions && c.GetHeader("Origin") == "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Headers", strings.Join(corsAllowHeaders, ", "))
			h.Set("Access-Control-Allow-Methods", strings.Join(corsAllowMethods, ", "))
			c.AbortWithStatus(http.StatusOK)
			return
		}
		browser(c)
	}
}
