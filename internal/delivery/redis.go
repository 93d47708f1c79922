package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis создаёт клиент Redis и проверяет подключение.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("подключение к Redis %s: %w", addr, err)
	}
	return rdb, nil
}

// NewAsynqClient создаёт клиент asynq с параметрами того же Redis.
func NewAsynqClient(rdb *redis.Client) *asynq.Client {
	opts := rdb.Options()
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Pinger — часть клиента Redis, нужная для проверки готовности.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// ReadinessChecker — проверка готовности Redis для health endpoint.
type ReadinessChecker struct {
	rdb Pinger
}

// NewReadinessChecker создаёт проверку готовности Redis.
func NewReadinessChecker(rdb Pinger) *ReadinessChecker {
	return &ReadinessChecker{rdb: rdb}
}

// CheckReady проверяет подключение к Redis через ping.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
