package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BackfillCursor 管理回补任务在 Redis 中的断点（最后处理过的签名）。
// 任务重启后从断点继续向历史方向翻页，避免重复拉取。
type BackfillCursor struct {
	rdb *redis.Client
}

const (
	cursorKeyPrefix = "backfill:cursor"
	cursorTTL       = 30 * 24 * time.Hour
)

func NewBackfillCursor(rdb *redis.Client) *BackfillCursor {
	return &BackfillCursor{rdb: rdb}
}

func (c *BackfillCursor) key(program string) string {
	return fmt.Sprintf("%s:%s", cursorKeyPrefix, program)
}

// Get 返回断点签名，不存在时返回空串。
func (c *BackfillCursor) Get(ctx context.Context, program string) (string, error) {
	val, err := c.rdb.Get(ctx, c.key(program)).Result()
	switch {
	case err == redis.Nil:
		return "", nil
	case err != nil:
		return "", fmt.Errorf("redis get cursor error: %w", err)
	default:
		return val, nil
	}
}

// Set 记录断点签名，每次翻页成功后调用。
func (c *BackfillCursor) Set(ctx context.Context, program, signature string) error {
	if err := c.rdb.Set(ctx, c.key(program), signature, cursorTTL).Err(); err != nil {
		return fmt.Errorf("redis set cursor error: %w", err)
	}
	return nil
}
