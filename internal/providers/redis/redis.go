package redis

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const monitorInterval = 5 * time.Second

// RedisProvider owns the client used for local snapshots. Entries expire
// after ttl unless they are read again.
type RedisProvider struct {
	Client    *redis.Client
	URL       string
	logger    *zap.SugaredLogger
	ttl       time.Duration
	connected atomic.Bool
	stop      context.CancelFunc
}

func NewRedisProvider(redisURL string, logger *zap.Logger, ttl time.Duration) *RedisProvider {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	// Snapshots are an optimization; fail fast rather than stall a session start.
	opts.MaxRetries = 1
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	provider := &RedisProvider{
		Client: redis.NewClient(opts),
		URL:    redisURL,
		logger: logger.Sugar(),
		ttl:    ttl,
		stop:   cancel,
	}
	provider.Client.AddHook(&loggerHook{logger: provider.logger})

	provider.checkConnection(ctx)
	if provider.Connected() {
		provider.logger.Infow("Redis connected", "url", redisURL, "db", opts.DB, "snapshot_ttl", ttl.String())
	} else {
		provider.logger.Warnw("Redis unavailable at startup, snapshots disabled until it returns", "url", redisURL)
	}
	go provider.monitor(ctx)

	return provider
}

// Set stores value under key with the provider TTL.
func (r *RedisProvider) Set(ctx context.Context, key string, value interface{}) error {
	return r.Client.Set(ctx, key, value, r.ttl).Err()
}

// Get returns the value and slides its expiry forward. A missing key
// returns redis.Nil.
func (r *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	return r.Client.GetEx(ctx, key, r.ttl).Bytes()
}

func (r *RedisProvider) Del(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

func (r *RedisProvider) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Connected reports the result of the last background ping.
func (r *RedisProvider) Connected() bool {
	return r.connected.Load()
}

// Close stops the monitor and closes the pool.
func (r *RedisProvider) Close() error {
	r.stop()
	return r.Client.Close()
}

func (r *RedisProvider) monitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkConnection(ctx)
		}
	}
}

func (r *RedisProvider) checkConnection(ctx context.Context) {
	err := r.Ping(ctx)
	if ctx.Err() != nil {
		return
	}
	was := r.connected.Swap(err == nil)
	switch {
	case was && err != nil:
		r.logger.Errorw("Redis disconnected", "error", err)
	case !was && err == nil:
		r.logger.Infow("Redis reachable", "url", r.URL)
	}
}

type loggerHook struct {
	logger *zap.SugaredLogger
}

func (h *loggerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Debugw("Redis dial failed", "addr", addr, "error", err)
		}
		return conn, err
	}
}

func (h *loggerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		if cmd.Name() == "ping" {
			return err
		}

		// Snapshot values are large; log the key only.
		fields := []interface{}{
			"command", cmd.Name(),
			"key", commandKey(cmd),
			"duration", time.Since(start).String(),
		}
		switch {
		case errors.Is(err, redis.Nil):
			h.logger.Debugw("Redis key not found", fields...)
		case err != nil:
			h.logger.Warnw("Redis command failed", append(fields, "error", err)...)
		default:
			h.logger.Debugw("Redis command executed", fields...)
		}
		return err
	}
}

func (h *loggerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func commandKey(cmd redis.Cmder) interface{} {
	if args := cmd.Args(); len(args) > 1 {
		return args[1]
	}
	return nil
}
