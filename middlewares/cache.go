// Package middlewares provides reusable middleware for the impersonating
// client: response caching, cookie injection and ordered header injection.
package middlewares

import (
	"bytes"
	"io"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/go-json-experiment/json"

	"github.com/kaptinlin/impersonate"
)

// Cacher stores encoded responses.
type Cacher interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// CacheMiddleware caches successful GET responses per host and path.
// Bodies are stored as received, still content-encoded, so the client
// decodes a cache hit the same way it decodes the wire.
func CacheMiddleware(cache Cacher, ttl time.Duration, logger impersonate.Logger) impersonate.Middleware {
	return func(next impersonate.MiddlewareHandlerFunc) impersonate.MiddlewareHandlerFunc {
		return func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodGet {
				return next(req)
			}
			key := cacheKey(req)
			if data, ok := cache.Get(key); ok {
				resp, err := fromCache(data, req)
				if err == nil {
					logger.Debugf("cache hit %s", key)
					return resp, nil
				}
				cache.Delete(key)
			}

			resp, err := next(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusOK {
				if data, err := toCache(resp); err == nil {
					cache.Set(key, data, ttl)
					logger.Debugf("cached %s", key)
				}
			}
			return resp, nil
		}
	}
}

// CachedResponse is the stored form of a response.
type CachedResponse struct {
	Proto      string      `json:"proto"`
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

func toCache(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return json.Marshal(&CachedResponse{
		Proto:      resp.Proto,
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	})
}

func cacheKey(req *http.Request) string {
	key := req.URL.Host + req.URL.Path
	if req.URL.RawQuery != "" {
		key += "?" + req.URL.RawQuery
	}
	return key
}

func fromCache(data []byte, req *http.Request) (*http.Response, error) {
	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &http.Response{
		Proto:         cached.Proto,
		Status:        cached.Status,
		StatusCode:    cached.StatusCode,
		Header:        cached.Headers,
		Body:          io.NopCloser(bytes.NewReader(cached.Body)),
		ContentLength: int64(len(cached.Body)),
		Request:       req,
	}, nil
}

// MemoryCache is an in-memory Cacher with per-entry expiry.
type MemoryCache struct {
	data  map[string]*cacheItem
	mutex sync.RWMutex
	done  chan struct{}
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache starts a MemoryCache. Call Close to stop its sweeper.
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{
		data: make(map[string]*cacheItem),
		done: make(chan struct{}),
	}
	go cache.sweep(time.Minute)
	return cache
}

// Close stops the background sweeper.
func (c *MemoryCache) Close() {
	close(c.done)
}

// Get returns an unexpired value.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.data[key]
	if !ok || !time.Now().Before(item.expiration) {
		return nil, false
	}
	return item.value, true
}

// Set stores value for ttl.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[key] = &cacheItem{value: value, expiration: time.Now().Add(ttl)}
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.data, key)
}

func (c *MemoryCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, item := range c.data {
				if now.After(item.expiration) {
					delete(c.data, key)
				}
			}
			c.mutex.Unlock()
		case <-c.done:
			return
		}
	}
}
