package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"tradeflow/pkg/logger"
)

var ErrLockHeld = errors.New("instrument is owned by another process")

// Locker 多个进程共用一份仓位存储时，同一品种只允许一个 worker
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

type Lease interface {
	// Lost 续期失败时关闭
	Lost() <-chan struct{}
	Release(ctx context.Context) error
}

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker SET NX PX 加锁，后台按 ttl/3 续期
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	full := l.prefix + key
	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	hctx, stop := context.WithCancel(context.Background())
	lease := &redisLease{
		locker: l,
		key:    full,
		token:  token,
		stop:   stop,
		lost:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.heartbeat(hctx)
	return lease, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string

	stop     context.CancelFunc
	lost     chan struct{}
	lostOnce sync.Once
	done     chan struct{}
}

func (s *redisLease) Lost() <-chan struct{} {
	return s.lost
}

func (s *redisLease) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

func (s *redisLease) heartbeat(ctx context.Context) {
	defer close(s.done)
	ttl := s.locker.ttl
	t := time.NewTicker(ttl / 3)
	defer t.Stop()

	lastOK := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		n, err := refreshScript.Run(ctx, s.locker.client, []string{s.key}, s.token, ttl.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("refresh lock %s: %v", s.key, err)
			// redis 不可用超过 ttl，锁可能已经被别人拿走
			if time.Since(lastOK) > ttl {
				logger.Errorf("lock %s expired while redis was unreachable", s.key)
				s.markLost()
				return
			}
			continue
		}
		if n == 0 {
			logger.Errorf("lock %s lost", s.key)
			s.markLost()
			return
		}
		lastOK = time.Now()
	}
}

// Release 只删除自己持有的锁
func (s *redisLease) Release(ctx context.Context) error {
	s.stop()
	<-s.done
	if err := releaseScript.Run(ctx, s.locker.client, []string{s.key}, s.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", s.key, err)
	}
	return nil
}
