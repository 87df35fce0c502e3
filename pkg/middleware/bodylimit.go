package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit はリクエストボディの大きさを制限するGinミドルウェアを返す。
// 上限を超えたボディの読み取りは *http.MaxBytesError で失敗する。
// Content-Lengthで上限超過が分かる場合は読み取り前に413を返す。
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
