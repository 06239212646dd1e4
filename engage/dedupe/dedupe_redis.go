package dedupe

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var redisEvaluatedPrefix string = "evaluated/"

// Tracker backed by one redis set per user, holding the submission identities already counted for that user.
type RedisTracker struct {
	Client *redis.Client
}

var _ Tracker = (*RedisTracker)(nil)

func NewRedisTracker(redisURL string) (*RedisTracker, error) {
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
	return &RedisTracker{
		Client: rdb,
	}, nil
}

func (t *RedisTracker) MarkEvaluated(ctx context.Context, user, submission string) (bool, error) {
	n, err := t.Client.SAdd(ctx, redisEvaluatedPrefix+user, submission).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *RedisTracker) IsEvaluated(ctx context.Context, user, submission string) (bool, error) {
	return t.Client.SIsMember(ctx, redisEvaluatedPrefix+user, submission).Result()
}
