package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// allowedOriginsに "*" が含まれる場合はすべてのオリジンを許可する。
// 許可されていないオリジンからのリクエストは403で拒否される。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", HeaderRequestID},
		ExposeHeaders: []string{HeaderRequestID},
		MaxAge:        24 * time.Hour,
	}

	if slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		originsSet := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			originsSet[o] = struct{}{}
		}
		cfg.AllowOriginFunc = func(origin string) bool {
			_, ok := originsSet[origin]
			return ok
		}
	}

	return cors.New(cfg)
}
