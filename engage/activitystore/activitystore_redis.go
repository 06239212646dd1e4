package activitystore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var redisActivityPrefix string = "activity/"

// Activity records stored as one redis hash per user, with fields "count" and "last_post_date".
//
// HSET replaces both fields in a single command, so a record is never half-written.
type RedisActivityStore struct {
	Client *redis.Client
}

var _ ActivityStore = (*RedisActivityStore)(nil)

func NewRedisActivityStore(redisURL string) (*RedisActivityStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisActivityStore{
		Client: rdb,
	}, nil
}

func (s *RedisActivityStore) Get(ctx context.Context, user string) (Record, error) {
	vals, err := s.Client.HGetAll(ctx, redisActivityPrefix+user).Result()
	if err != nil {
		return Record{}, err
	}
	// HGETALL on a missing key is an empty hash
	if len(vals) == 0 {
		return Record{}, nil
	}
	var rec Record
	if raw, ok := vals["count"]; ok {
		c, err := strconv.Atoi(raw)
		if err != nil || c < 0 {
			return Record{}, fmt.Errorf("invalid stored comment count for user %q: %q", user, raw)
		}
		rec.QualifyingCommentCount = c
	}
	rec.LastPostDate, err = ParseDate(vals["last_post_date"])
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisActivityStore) Put(ctx context.Context, user string, rec Record) error {
	return s.Client.HSet(ctx, redisActivityPrefix+user,
		"count", rec.QualifyingCommentCount,
		"last_post_date", rec.FormatDate(),
	).Err()
}
