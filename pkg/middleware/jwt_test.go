package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// newJWTRouter はJWTAuthで保護された /test を持つルーターを生成する。
func newJWTRouter(secret string) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuth(secret))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": GetUsername(c)})
	})
	return router
}

// serveWithAuth はAuthorizationヘッダーを付けて /test にリクエストする。
func serveWithAuth(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}
		if claims.Username != "admin" {
			t.Errorf("Username = %q, want %q", claims.Username, "admin")
		}
		if claims.Subject != "admin" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "admin")
		}
		if claims.Issuer != "routersim" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "routersim")
		}
		if claims.ID == "" {
			t.Error("jtiが空")
		}
		if token.Method.Alg() != "HS256" {
			t.Errorf("署名アルゴリズム = %q, want %q", token.Method.Alg(), "HS256")
		}
	})

	t.Run("有効期限がttl後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testSecret, "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		if _, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		}); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		expected := before.Add(time.Hour)
		// 有効期限が1時間後の前後1分以内であること
		if d := claims.ExpiresAt.Time.Sub(expected); d < -time.Minute || d > time.Minute {
			t.Errorf("ExpiresAt = %v, want about %v", claims.ExpiresAt.Time, expected)
		}
	})

	t.Run("同じユーザーでも毎回異なるトークンが生成されること", func(t *testing.T) {
		t.Parallel()

		a, _ := GenerateJWT(testSecret, "admin", time.Hour)
		b, _ := GenerateJWT(testSecret, "admin", time.Hour)
		if a == b {
			t.Error("同一のトークンが生成された")
		}
	})
}

// TestJWTAuth はJWTAuthミドルウェアを検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでリクエストが成功しユーザー名が設定されること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		w := serveWithAuth(newJWTRouter(testSecret), "Bearer "+tokenStr)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body["username"] != "admin" {
			t.Errorf("username = %q, want %q", body["username"], "admin")
		}
	})

	expired := func(t *testing.T) string {
		t.Helper()
		claims := JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
				Issuer:    "routersim",
			},
			Username: "admin",
		}
		tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}
		return tokenStr
	}

	otherSecret := func(t *testing.T) string {
		t.Helper()
		tokenStr, err := GenerateJWT("another-secret", "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		return tokenStr
	}

	tests := []struct {
		name          string
		authorization func(t *testing.T) string
		wantMessage   string
	}{
		{
			name:          "Authorizationヘッダーが無い場合401が返ること",
			authorization: func(*testing.T) string { return "" },
			wantMessage:   "Authorization header is required",
		},
		{
			name:          "Bearer接頭辞が無い場合401が返ること",
			authorization: func(*testing.T) string { return "Token abc" },
			wantMessage:   "Invalid authorization scheme",
		},
		{
			name:          "無効なトークンで401が返ること",
			authorization: func(*testing.T) string { return "Bearer not-a-jwt" },
			wantMessage:   "Invalid or expired token",
		},
		{
			name:          "異なるシークレットで署名されたトークンで401が返ること",
			authorization: func(t *testing.T) string { return "Bearer " + otherSecret(t) },
			wantMessage:   "Invalid or expired token",
		},
		{
			name:          "期限切れトークンで401が返ること",
			authorization: func(t *testing.T) string { return "Bearer " + expired(t) },
			wantMessage:   "Invalid or expired token",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := serveWithAuth(newJWTRouter(testSecret), tt.authorization(t))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %q, want %q", body["message"], tt.wantMessage)
			}
		})
	}
}

// TestGetUsername はGetUsername関数を検証する。
func TestGetUsername(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストにusernameが設定されていない場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetUsername(c); got != "" {
			t.Errorf("GetUsername() = %q, want empty string", got)
		}
	})

	t.Run("usernameが文字列以外の型の場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("username", 12345)
		if got := GetUsername(c); got != "" {
			t.Errorf("GetUsername() = %q, want empty string", got)
		}
	})
}
