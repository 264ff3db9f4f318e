package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/utils"
)

// Principal is the authenticated caller attached to the request context.
// Role is "authenticated" for SPA users and "service" for key-based callers.
type Principal struct {
	ID    uuid.UUID
	Email string
	Role  string
}

const principalKey = "principal"

// CurrentPrincipal returns the caller set by the auth middleware.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func setPrincipal(c *gin.Context, p Principal) {
	c.Set(principalKey, p)
	c.Set("userID", p.ID.String())
}

// AuthMiddleware validates the caller's credentials. Browser clients send
// a bearer token issued by the hosted auth provider (HS256, shared
// secret); automation sends an X-API-Key service key instead. Failure
// responses are deliberately short; detail goes to the log only.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != "" {
			authenticateServiceKey(c)
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		secret, err := utils.GetJwtSecretBytes()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token verification unavailable"})
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		principal, err := principalFromClaims(token)
		if err != nil {
			logger().Warn("token verified but unusable", "reason", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		setPrincipal(c, principal)
		c.Next()
	}
}

// principalFromClaims extracts the caller identity from a verified token.
// The token must carry a uuid subject, an acceptable role, and, when an
// audience is present, include "authenticated".
func principalFromClaims(token *jwt.Token) (Principal, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("claims missing")
	}

	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return Principal{}, fmt.Errorf("subject is not a uuid")
	}

	role, _ := claims["role"].(string)
	if role != "authenticated" && role != "service_role" {
		return Principal{}, fmt.Errorf("unexpected role %q", role)
	}

	if aud, found := claims["aud"]; found {
		if !audienceContains(aud, "authenticated") {
			return Principal{}, fmt.Errorf("audience mismatch")
		}
	}

	email, _ := claims["email"].(string)
	return Principal{ID: id, Email: email, Role: role}, nil
}

func audienceContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}

// authenticateServiceKey checks an X-API-Key credential against the
// service_keys table: prefix lookup, bcrypt compare, best-effort
// last_used_at update.
func authenticateServiceKey(c *gin.Context) {
	raw := c.GetHeader("X-API-Key")
	if !utils.LooksLikeServiceKey(raw) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var key database.ServiceKey
	err := database.DB.Get(&key,
		`SELECT id, user_id, name, key_prefix, key_hash, created_at, last_used_at, revoked_at
		 FROM service_keys WHERE key_prefix=$1 AND revoked_at IS NULL LIMIT 1`,
		raw[:12])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	if !utils.CheckServiceKey(raw, key.KeyHash) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	_, _ = database.DB.Exec(`UPDATE service_keys SET last_used_at=$1 WHERE id=$2`, time.Now(), key.ID)

	setPrincipal(c, Principal{ID: key.UserID, Role: "service"})
	c.Next()
}

// RequestIDMiddleware ensures every request carries an X-Request-ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set("requestID", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// VersionMiddleware stamps the API version on every response.
func VersionMiddleware(version string) gin.HandlerFunc {
	if version == "" {
		version = Version
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Medgate-Version", version)
		c.Next()
	}
}

// --- Rate limiting ---

// In-memory fixed-window limiter per client IP; the Redis variant below
// takes over for multi-instance deployments.
type clientWindow struct {
	count       int
	windowStart time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

func (l *ipLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cw, ok := l.clients[ip]
	if !ok {
		l.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true, 0
	}
	if now.Sub(cw.windowStart) >= l.window {
		cw.count = 1
		cw.windowStart = now
		return true, 0
	}
	if cw.count < l.limit {
		cw.count++
		return true, 0
	}
	return false, l.window - now.Sub(cw.windowStart)
}

// RateLimitMiddleware limits requests per client IP with a fixed window.
// The status-polling endpoint is exempt so a 30s poll never starves real
// traffic of budget.
func RateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	if limitPerMinute <= 0 {
		limitPerMinute = 120
	}
	limiter := newIPLimiter(limitPerMinute, time.Minute)
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/agent/status" {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		ok, retryAfter := limiter.allow(ip)
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RateLimitMiddlewareFromEnv picks the Redis-backed limiter when
// REDIS_ADDR is set, else the in-memory one. MEDGATE_RATE_LIMIT sets the
// per-minute budget.
func RateLimitMiddlewareFromEnv() gin.HandlerFunc {
	rpm := parseEnvInt("MEDGATE_RATE_LIMIT", 120)
	rc := RedisFromEnv()
	if rc == nil {
		return RateLimitMiddleware(rpm)
	}
	fallback := RateLimitMiddleware(rpm)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/agent/status" {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		now := time.Now().UTC()
		key := fmt.Sprintf("medgate:rl:%s:%04d%02d%02d%02d%02d", ip,
			now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			fallback(c)
			return
		}
		_ = rc.Expire(ctx, key, 61*time.Second).Err()
		if int(n) > rpm {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func parseEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// RedisFromEnv builds a client from REDIS_ADDR, or nil when unset.
func RedisFromEnv() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       parseEnvInt("REDIS_DB", 0),
	})
}

// --- Idempotency (uploads and session starts) ---

type captureWriter struct {
	gin.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

type idemRecord struct {
	status int
	body   []byte
	ts     time.Time
}

var idemStore sync.Map // storage key -> idemRecord

// IdempotencyMiddlewareFromEnv replays the stored response when a POST
// carries an Idempotency-Key it has seen before. Scoped per caller so two
// users can share a key value without collisions.
func IdempotencyMiddlewareFromEnv() gin.HandlerFunc {
	rc := RedisFromEnv()
	ttl := 24 * time.Hour
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}
		caller := "anonymous"
		if p, ok := CurrentPrincipal(c); ok {
			caller = p.ID.String()
		}
		storageKey := fmt.Sprintf("medgate:idem:%s:%s", caller, key)

		if rc != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 250*time.Millisecond)
			defer cancel()
			if data, err := rc.Get(ctx, storageKey).Bytes(); err == nil {
				if statusStr, body, found := bytes.Cut(data, []byte{'\n'}); found {
					if s, err2 := strconv.Atoi(string(statusStr)); err2 == nil {
						c.Writer.Header().Set("X-Idempotent-Replay", "true")
						c.Status(s)
						_, _ = c.Writer.Write(body)
						c.Abort()
						return
					}
				}
			}
		} else if v, ok := idemStore.Load(storageKey); ok {
			rec := v.(idemRecord)
			c.Writer.Header().Set("X-Idempotent-Replay", "true")
			c.Status(rec.status)
			_, _ = c.Writer.Write(rec.body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		if cw.status >= 500 {
			return // don't pin failures
		}
		if rc != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer cancel()
			payload := append([]byte(strconv.Itoa(cw.status)+"\n"), cw.buf.Bytes()...)
			_ = rc.Set(ctx, storageKey, payload, ttl).Err()
		} else {
			idemStore.Store(storageKey, idemRecord{
				status: cw.status,
				body:   append([]byte(nil), cw.buf.Bytes()...),
				ts:     time.Now(),
			})
		}
	}
}
