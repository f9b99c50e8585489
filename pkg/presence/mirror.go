package presence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chat-core/pkg/model"
)

const (
	onlineSetKey     = "chat:online"
	usernamesHashKey = "chat:usernames"
)

// RedisMirror reflects membership into a Redis set plus a username hash so
// presence can be read without reaching into the server process. The
// in-process registry stays authoritative; the mirror is advisory.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(addr string) *RedisMirror {
	return &RedisMirror{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (m *RedisMirror) Joined(ctx context.Context, p model.Participant) error {
	pipe := m.rdb.Pipeline()
	pipe.SAdd(ctx, onlineSetKey, p.ID)
	pipe.HSet(ctx, usernamesHashKey, p.ID, p.Username)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Left(ctx context.Context, p model.Participant) error {
	pipe := m.rdb.Pipeline()
	pipe.SRem(ctx, onlineSetKey, p.ID)
	pipe.HDel(ctx, usernamesHashKey, p.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}
