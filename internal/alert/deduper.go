package alert

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// 去重 Key 前缀
	dedupKeyPrefix = "alert:dedup"

	// DefaultDedupTTL 默认去重 TTL
	DefaultDedupTTL = time.Hour
)

// Deduper 事件去重器。
// 有 Redis 时用 SetNX 原子去重（多实例共享）；
// 没有 Redis 退化为进程内 map，仅保证单实例不重复。
type Deduper struct {
	redis *redis.Client
	log   *zap.Logger
	ttl   time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewDeduper 创建去重器；redisClient 可为 nil
func NewDeduper(redisClient *redis.Client, log *zap.Logger, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Deduper{
		redis: redisClient,
		log:   log,
		ttl:   ttl,
		seen:  make(map[string]time.Time),
		now:   time.Now,
	}
}

// IsDuplicate 检查并登记：TTL 窗口内同 key 第二次起返回 true。
// Redis 出错时放行（宁可重复告警，不可吞告警）。
func (d *Deduper) IsDuplicate(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	if d.redis != nil {
		success, err := d.redis.SetNX(ctx, dedupKeyPrefix+":"+key, "1", d.ttl).Result()
		if err != nil {
			d.log.Warn("告警去重检查失败，放行",
				zap.String("key", key),
				zap.Error(err))
			return false
		}
		return !success
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return true
	}
	d.seen[key] = now.Add(d.ttl)
	d.sweepLocked(now)
	return false
}

// sweepLocked 清掉过期条目，防止 map 无界增长
func (d *Deduper) sweepLocked(now time.Time) {
	if len(d.seen) < 1024 {
		return
	}
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
}
