package session

import (
	"crypto/sha256"
	"sync"
	"time"
)

// fingerprint は認証情報から導出した識別子。認証情報そのものは保持しない。
type fingerprint [sha256.Size]byte

// newFingerprint はユーザー名とパスワードからfingerprintを生成する。
func newFingerprint(username, password string) fingerprint {
	h := sha256.New()
	h.Write([]byte(username))
	h.Write([]byte{0})
	h.Write([]byte(password))
	var fp fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// TokenCache は上流APIのBearerトークンを1件だけ保持するキャッシュ。
// 読み取りと更新はすべてミューテックスで保護される。
type TokenCache struct {
	mu        sync.Mutex
	token     string
	owner     fingerprint
	expiresAt time.Time
}

// CacheStatus はトークンキャッシュの状態のスナップショット。
// トークン自体は含まない。
type CacheStatus struct {
	// Cached は有効なトークンを保持しているかどうか。
	Cached bool `json:"cached"`
	// ExpiresAt はトークンの有効期限。保持していない場合はnil。
	ExpiresAt *time.Time `json:"expiresAt"`
}

// lookup はownerに対して発行された有効なトークンを返す。
// トークンは expiresAt が now より後の間だけ有効とみなす。
func (c *TokenCache) lookup(owner fingerprint, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || c.owner != owner || !c.expiresAt.After(now) {
		return "", false
	}
	return c.token, true
}

// store はトークンを保存する。既存のトークンは上書きされる。
func (c *TokenCache) store(token string, owner fingerprint, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.owner = owner
	c.expiresAt = expiresAt
}

// clear はキャッシュを空にする。
func (c *TokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.owner = fingerprint{}
	c.expiresAt = time.Time{}
}

// clearIfCurrent は保持しているトークンがtokenと一致する場合だけキャッシュを空にする。
// 並行したログインで保存された新しいトークンを消さないために使う。
func (c *TokenCache) clearIfCurrent(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || c.token != token {
		return false
	}
	c.token = ""
	c.owner = fingerprint{}
	c.expiresAt = time.Time{}
	return true
}

// status はキャッシュの状態を返す。
func (c *TokenCache) status(now time.Time) CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.expiresAt.After(now) {
		return CacheStatus{}
	}
	expiresAt := c.expiresAt
	return CacheStatus{Cached: true, ExpiresAt: &expiresAt}
}
