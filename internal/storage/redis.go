package storage

import (
	"context"
	"fmt"
	"time"

	"hr-agent-go/internal/config"
	"hr-agent-go/internal/constants"
	"hr-agent-go/internal/tracing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("hr-agent-go/storage/redis")

// Redis wraps the Redis client
// 作为文本指纹守卫使用：指纹键标记已入库文本，锁键串行化并发的相同提交
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	// 使用扩展的配置选项
	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,     // 默认10
		MinIdleConns: cfg.MinIdleConns, // 默认2

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,  // 默认5秒
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,  // 默认3秒
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second, // 默认3秒
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	// Ping to check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetFingerprintExpireDuration 返回配置的指纹记录过期时间
func (r *Redis) GetFingerprintExpireDuration() time.Duration {
	days := r.config.FingerprintExpireDays
	if days <= 0 {
		days = 365 // 默认1年
	}
	return time.Duration(days) * 24 * time.Hour
}

// getLockTTL 返回指纹锁的持有时间
func (r *Redis) getLockTTL() time.Duration {
	seconds := r.config.LockTTLSeconds
	if seconds <= 0 {
		seconds = 120
	}
	return time.Duration(seconds) * time.Second
}

// CheckAndLock 检查文本指纹是否已入库，未入库时获取指纹锁
// 返回值: seen=true 表示指纹已存在（直接判重）; unlock 非nil时由调用方在处理结束后释放锁
// 锁未抢到时不阻塞等待：极端并发下MySQL的 text_md5 唯一索引仍然兜底
func (r *Redis) CheckAndLock(ctx context.Context, textMD5 string) (bool, func(), error) {
	ctx, span := redisTracer.Start(ctx, "Redis.CheckAndLock",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("fingerprint.md5", textMD5),
	)

	if r.Client == nil {
		err := fmt.Errorf("redis client is not initialized")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, err
	}

	// 1. 指纹已存在：相同文本已经成功入库过
	fingerprintKey := fmt.Sprintf(constants.KeyTextFingerprint, textMD5)
	span.SetAttributes(attribute.String("db.redis.key", tracing.SafeRedisKey(fingerprintKey)))
	exists, err := r.Client.Exists(ctx, fingerprintKey).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, fmt.Errorf("检查文本指纹失败: %w", err)
	}
	if exists > 0 {
		span.SetAttributes(attribute.Bool("fingerprint.seen", true))
		span.SetStatus(codes.Ok, "")
		return true, nil, nil
	}

	// 2. 指纹不存在：尝试获取锁，串行化并发的相同文本提交
	lockKey := fmt.Sprintf(constants.KeyTextFingerprintLock, textMD5)
	lockValue := uuid.New().String()
	acquired, err := r.Client.SetNX(ctx, lockKey, lockValue, r.getLockTTL()).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, fmt.Errorf("获取指纹锁失败: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("fingerprint.seen", false),
		attribute.Bool("fingerprint.lock_acquired", acquired),
	)
	span.SetStatus(codes.Ok, "")

	if !acquired {
		// 同一文本正在被其他请求处理，不等待也不报错
		return false, nil, nil
	}

	unlock := func() {
		// 释放锁时校验持有者，避免误删他人持有的锁
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = r.releaseLock(releaseCtx, lockKey, lockValue)
	}
	return false, unlock, nil
}

// MarkStored 登记已入库文本的指纹并设置过期时间
func (r *Redis) MarkStored(ctx context.Context, textMD5 string) error {
	ctx, span := redisTracer.Start(ctx, "Redis.MarkStored",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "SET"),
		attribute.String("fingerprint.md5", textMD5),
	)

	if r.Client == nil {
		err := fmt.Errorf("redis client is not initialized")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	fingerprintKey := fmt.Sprintf(constants.KeyTextFingerprint, textMD5)
	if err := r.Client.Set(ctx, fingerprintKey, "1", r.GetFingerprintExpireDuration()).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("登记文本指纹失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// releaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) releaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	// Lua脚本: 如果key存在且值匹配，则删除key
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}

	if released, ok := res.(int64); ok && released == 1 {
		return true, nil // 成功释放
	}

	return false, nil // 锁不存在或不属于当前持有者
}
