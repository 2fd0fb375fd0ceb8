package pending

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// registerScript sets all keys or none. ARGV[1] is the TTL in milliseconds,
// followed by one value per key. It returns the position of the first key
// that already exists, or zero.
var registerScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call("EXISTS", key) == 1 then
		return i
	end
end
for i, key in ipairs(KEYS) do
	redis.call("SET", key, ARGV[i + 1], "PX", ARGV[1])
end
return 0
`)

// RedisTracker keeps submissions in redis, so that all processes
// coordinating the same Safe share them. Every submission is a single key
// that expires after the configured TTL.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker returns a tracker using given client.
func NewRedisTracker(client redis.UniversalClient, conf Configuration) *RedisTracker {
	return &RedisTracker{
		client: client,
		prefix: conf.Prefix + ":pending:",
		ttl:    conf.TTL(),
	}
}

func (r *RedisTracker) key(id common.Hash) string {
	return r.prefix + id.Hex()
}

func (r *RedisTracker) Register(ctx context.Context, subs []Submission) error {
	if err := validateAll(subs); err != nil {
		return err
	}

	keys := make([]string, len(subs))
	args := make([]interface{}, 0, len(subs)+1)
	args = append(args, r.ttl.Milliseconds())
	for i := range subs {
		raw, err := msgpack.Marshal(&subs[i])
		if err != nil {
			return errors.Wrap(errors.ErrInput, err.Error())
		}
		keys[i] = r.key(subs[i].ID)
		args = append(args, raw)
	}

	pos, err := registerScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if pos > 0 {
		return errors.Wrapf(errors.ErrInProgress, "%s", subs[pos-1].ID.Hex())
	}
	return nil
}

func (r *RedisTracker) Update(ctx context.Context, s Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := msgpack.Marshal(&s)
	if err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	err = r.client.SetArgs(ctx, r.key(s.ID), raw, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	switch {
	case err == redis.Nil:
		return errors.Wrapf(errors.ErrNotFound, "submission %s", s.ID.Hex())
	case err != nil:
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (r *RedisTracker) Get(ctx context.Context, id common.Hash) (*Submission, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	switch {
	case err == redis.Nil:
		return nil, errors.Wrapf(errors.ErrNotFound, "submission %s", id.Hex())
	case err != nil:
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	var s Submission
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(errors.ErrModel, "submission %s: %s", id.Hex(), err)
	}
	return &s, nil
}

func (r *RedisTracker) List(ctx context.Context) ([]Submission, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	res := make([]Submission, 0, len(values))
	for i, v := range values {
		// A key may expire between the scan and the read.
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s Submission
		if err := msgpack.Unmarshal([]byte(raw), &s); err != nil {
			return nil, errors.Wrapf(errors.ErrModel, "key %s: %s", keys[i], err)
		}
		res = append(res, s)
	}
	sortSubmissions(res)
	return res, nil
}

func (r *RedisTracker) Release(ctx context.Context, ids ...common.Hash) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}
