package presence

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis mirrors the local table into shared sets so that several server processes
// agree on who is online. Handles themselves stay local: each process only fans
// out to its own connections.
//
// Keys:
//
//	presence:user:{userID}  set of "{node}/{connID}"
//	presence:node:{node}    set of "{userID}/{connID}"
type Redis struct {
	local *Local
	rdb   redis.UniversalClient
	node  string
	log   *zerolog.Logger
}

// NewRedis wraps local with a shared view stored in rdb. node must be unique per process.
func NewRedis(local *Local, rdb redis.UniversalClient, node string, logger *zerolog.Logger) *Redis {
	return &Redis{local: local, rdb: rdb, node: node, log: logger}
}

func userKey(userID string) string { return "presence:user:" + userID }
func (r *Redis) nodeKey() string   { return "presence:node:" + r.node }

func (r *Redis) Connect(ctx context.Context, c Conn) (bool, error) {
	first, _ := r.local.Connect(ctx, c)

	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, userKey(c.UserID()), r.node+"/"+c.ID())
	pipe.SAdd(ctx, r.nodeKey(), c.UserID()+"/"+c.ID())
	card := pipe.SCard(ctx, userKey(c.UserID()))
	if _, err := pipe.Exec(ctx); err != nil {
		return first, fmt.Errorf("redis presence connect: %w", err)
	}
	return card.Val() == 1, nil
}

func (r *Redis) Disconnect(ctx context.Context, c Conn) (bool, error) {
	last, _ := r.local.Disconnect(ctx, c)

	pipe := r.rdb.TxPipeline()
	pipe.SRem(ctx, userKey(c.UserID()), r.node+"/"+c.ID())
	pipe.SRem(ctx, r.nodeKey(), c.UserID()+"/"+c.ID())
	card := pipe.SCard(ctx, userKey(c.UserID()))
	if _, err := pipe.Exec(ctx); err != nil {
		return last, fmt.Errorf("redis presence disconnect: %w", err)
	}
	return last && card.Val() == 0, nil
}

func (r *Redis) Connections(userID string) []Conn {
	return r.local.Connections(userID)
}

func (r *Redis) All() []Conn {
	return r.local.All()
}

func (r *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	if online, _ := r.local.IsOnline(ctx, userID); online {
		return true, nil
	}
	n, err := r.rdb.SCard(ctx, userKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis presence lookup: %w", err)
	}
	return n > 0, nil
}

// Purge removes every entry this node registered. It is run at startup to clear
// leftovers of a crashed process with the same node id, and again on shutdown.
func (r *Redis) Purge(ctx context.Context) error {
	members, err := r.rdb.SMembers(ctx, r.nodeKey()).Result()
	if err != nil {
		return fmt.Errorf("list node presence: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	for _, m := range members {
		i := strings.LastIndex(m, "/")
		if i < 0 {
			continue
		}
		pipe.SRem(ctx, userKey(m[:i]), r.node+"/"+m[i+1:])
	}
	pipe.Del(ctx, r.nodeKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("purge node presence: %w", err)
	}

	r.log.Debug().Str("node", r.node).Int("entries", len(members)).Msg("presence purged")
	return nil
}
