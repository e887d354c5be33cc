package gateway

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CacheEntry 缓存条目
type CacheEntry struct {
	Data        []byte
	ContentType string
	ExpiresAt   time.Time
	ETag        string
}

// MemoryCache 内存缓存
type MemoryCache struct {
	entries map[string]*CacheEntry
	mutex   sync.RWMutex
	now     func() time.Time

	// 配置
	MaxEntries      int
	CleanupInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{
		entries:         make(map[string]*CacheEntry),
		now:             time.Now,
		MaxEntries:      1000,
		CleanupInterval: time.Minute,
		stop:            make(chan struct{}),
	}

	// 启动清理协程
	go cache.cleanup()

	return cache
}

// Stop 停止清理协程
func (mc *MemoryCache) Stop() {
	mc.stopOnce.Do(func() { close(mc.stop) })
}

// CacheMiddleware 统计接口的响应缓存
type CacheMiddleware struct {
	cache *MemoryCache

	// 路径前缀 -> 缓存时间
	CacheTTL map[string]time.Duration
}

// NewCacheMiddleware 创建缓存中间件
func NewCacheMiddleware() *CacheMiddleware {
	return &CacheMiddleware{
		cache: NewMemoryCache(),
		CacheTTL: map[string]time.Duration{
			"/api/stats/global":    30 * time.Second,
			"/api/stats/dashboard": 10 * time.Second,
		},
	}
}

// Stop 停止内部缓存
func (cm *CacheMiddleware) Stop() {
	cm.cache.Stop()
}

// Middleware 缓存中间件
func (cm *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 只缓存GET请求
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		ttl, ok := cm.getTTL(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := cm.generateCacheKey(r)

		if entry := cm.cache.Get(cacheKey); entry != nil {
			if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch != "" && ifNoneMatch == entry.ETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			cm.writeCachedResponse(w, entry)
			return
		}

		recorder := &cacheResponseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		// 只缓存成功的响应
		if recorder.statusCode == http.StatusOK && len(recorder.body) > 0 {
			cm.cache.Set(cacheKey, &CacheEntry{
				Data:        recorder.body,
				ContentType: recorder.Header().Get("Content-Type"),
				ExpiresAt:   cm.cache.now().Add(ttl),
				ETag:        cm.generateETag(recorder.body),
			})
		}
	})
}

// generateCacheKey 使用路径和查询参数生成键
func (cm *CacheMiddleware) generateCacheKey(r *http.Request) string {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

// getTTL 获取缓存时间，不可缓存的路径返回 false
func (cm *CacheMiddleware) getTTL(path string) (time.Duration, bool) {
	for prefix, ttl := range cm.CacheTTL {
		if strings.HasPrefix(path, prefix) {
			return ttl, true
		}
	}
	return 0, false
}

// generateETag 生成ETag
func (cm *CacheMiddleware) generateETag(data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, hash)
}

// writeCachedResponse 写入缓存的响应
func (cm *CacheMiddleware) writeCachedResponse(w http.ResponseWriter, entry *CacheEntry) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("ETag", entry.ETag)
	w.Header().Set("X-Cache", "HIT")

	w.WriteHeader(http.StatusOK)
	w.Write(entry.Data)
}

// Get 获取未过期的缓存条目
func (mc *MemoryCache) Get(key string) *CacheEntry {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	entry, exists := mc.entries[key]
	if !exists || mc.now().After(entry.ExpiresAt) {
		return nil
	}
	return entry
}

// Set 设置缓存条目
func (mc *MemoryCache) Set(key string, entry *CacheEntry) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if len(mc.entries) >= mc.MaxEntries {
		mc.evictExpired()

		if len(mc.entries) >= mc.MaxEntries {
			mc.evictOldest()
		}
	}

	mc.entries[key] = entry
}

// evictExpired 删除过期条目
func (mc *MemoryCache) evictExpired() {
	now := mc.now()
	for key, entry := range mc.entries {
		if now.After(entry.ExpiresAt) {
			delete(mc.entries, key)
		}
	}
}

// evictOldest 删除最早过期的条目
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range mc.entries {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

// cleanup 清理过期条目
func (mc *MemoryCache) cleanup() {
	ticker := time.NewTicker(mc.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mutex.Lock()
			mc.evictExpired()
			mc.mutex.Unlock()
		case <-mc.stop:
			return
		}
	}
}

// cacheResponseRecorder 缓存响应记录器
type cacheResponseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

// WriteHeader 记录状态码
func (crr *cacheResponseRecorder) WriteHeader(code int) {
	crr.statusCode = code
	crr.ResponseWriter.WriteHeader(code)
}

// Write 记录响应体
func (crr *cacheResponseRecorder) Write(data []byte) (int, error) {
	crr.body = append(crr.body, data...)
	return crr.ResponseWriter.Write(data)
}
