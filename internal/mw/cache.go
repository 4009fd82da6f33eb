package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheKeyFunc derives the cache key of a request.
type CacheKeyFunc func(c *gin.Context) string

// KeyByURI caches one response per request URI. Use it only for responses
// that do not depend on who is asking.
func KeyByURI(c *gin.Context) string {
	return c.Request.RequestURI
}

// KeyByCaller caches one response per authenticated user and request URI.
func KeyByCaller(c *gin.Context) string {
	caller, ok := CallerFrom(c)
	if !ok {
		return "anon:" + c.Request.RequestURI
	}
	return string(caller.Role) + ":" + itoa(caller.UserID) + ":" + c.Request.RequestURI
}

// Cache is a middleware for in-memory caching of successful GET responses.
// The X-Cache header reports HIT or MISS.
func Cache(store *cache.Cache, duration time.Duration, key CacheKeyFunc) gin.HandlerFunc {
	if key == nil {
		key = KeyByURI
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		k := key(c)
		if resp, found := store.Get(k); found {
			cached := resp.(cachedResponse)
			for h, v := range cached.headers {
				c.Writer.Header()[h] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		c.Writer.Header().Set("X-Cache", "MISS")
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if blw.Status() >= 200 && blw.Status() < 300 {
			headers := blw.Header().Clone()
			headers.Del("X-Cache")
			store.Set(k, cachedResponse{
				status:  blw.Status(),
				headers: headers,
				body:    blw.body.Bytes(),
			}, duration)
		}
	}
}

// Invalidate flushes store after any successful write request passing
// through it, so cached listings never outlive a change made on this node.
func Invalidate(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if s := c.Writer.Status(); s >= 200 && s < 300 {
			store.Flush()
		}
	}
}
