// Package kvstore is a typed wrapper over the Redis-semantic commands the
// core components use: plain get/set, sets, sorted sets, lists, pipelined
// multi-writes and optimistic WATCH/MULTI/EXEC transactions. It exposes no
// retry policy of its own — callers choose whether and how to retry.
package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get/ Z-score lookups when the key is absent.
// Callers treat this the same as a malformed record: "not found" for the
// purposes of the calling operation.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrAborted is returned by RunTx when a watched key changed between WATCH
// and EXEC (optimistic CAS abort).
var ErrAborted = errors.New("kvstore: transaction aborted")

// Z is a sorted-set member/score pair, mirroring redis.Z so callers never
// need to import go-redis directly.
type Z struct {
	Score  float64
	Member string
}

// Store is the command surface the core depends on. A single
// implementation backs it in production (Redis); tests use the same
// interface against miniredis.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	MGet(ctx context.Context, keys ...string) ([]*string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SInter(ctx context.Context, keys ...string) ([]string, error)
	SUnionStore(ctx context.Context, dest string, ttl time.Duration, keys ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)

	ZAdd(ctx context.Context, key string, members ...Z) error
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZMScore(ctx context.Context, key string, members ...string) ([]*float64, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	RPush(ctx context.Context, key string, values ...string) error
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	LMove(ctx context.Context, source, destination string, fromLeft, toLeft bool) (string, bool, error)

	// Pipeline runs fn against a batch, committing all writes atomically
	// (server-side MULTI/EXEC) once fn returns.
	Pipeline(ctx context.Context, fn func(p Pipeliner)) error

	// RunTx implements WATCH(keys) -> fn(tx) -> MULTI/EXEC. fn reads
	// current state via tx and issues writes through the Pipeliner passed
	// to tx.Queue; if any watched key changed before EXEC, RunTx returns
	// ErrAborted and fn's queued writes never apply.
	RunTx(ctx context.Context, keys []string, fn func(tx Tx) error) error
}

// Pipeliner queues writes for a single atomic multi-write.
type Pipeliner interface {
	Set(key, value string)
	SetEX(key, value string, ttl time.Duration)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	ZAdd(key string, members ...Z)
	ZRem(key string, members ...string)
	RPush(key string, values ...string)
	LRem(key string, count int64, value string)
}

// Tx is the read side of an optimistic transaction: reads observe the
// watched state, then Queue schedules writes that only commit if nothing
// watched changed.
type Tx interface {
	Get(ctx context.Context, key string) (string, error)
	Queue(fn func(p Pipeliner))
}

// redisStore is the production Store implementation over go-redis/v9.
type redisStore struct {
	client redis.UniversalClient
}

// New wraps an existing redis client (or cluster/sentinel client) as a
// Store. The caller owns the client's lifecycle (Ping/Close).
func New(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return err
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	return v, translateErr(err)
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *redisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *redisStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = &s
	}
	return out, nil
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SAdd(ctx, key, toAny(members)...).Err()
}

func (s *redisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SRem(ctx, key, toAny(members)...).Err()
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *redisStore) SInter(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return s.client.SInter(ctx, keys...).Result()
}

// SUnionStore computes the union of keys into a transient dest key with a
// short TTL, matching the request/ticket store's multi-guild candidate-set
// pattern.
func (s *redisStore) SUnionStore(ctx context.Context, dest string, ttl time.Duration, keys ...string) error {
	if err := s.client.SUnionStore(ctx, dest, keys...).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, dest, ttl).Err()
}

func (s *redisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *redisStore) ZAdd(ctx context.Context, key string, members ...Z) error {
	if len(members) == 0 {
		return nil
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	return s.client.ZAdd(ctx, key, zs...).Err()
}

func (s *redisStore) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return s.client.ZRem(ctx, key, toAny(members)...).Result()
}

func (s *redisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.ZRange(ctx, key, start, stop).Result()
}

func (s *redisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: floatStr(min),
		Max: floatStr(max),
	}).Result()
}

func (s *redisStore) ZMScore(ctx context.Context, key string, members ...string) ([]*float64, error) {
	if len(members) == 0 {
		return nil, nil
	}
	scores, err := s.client.ZMScore(ctx, key, members...).Result()
	if err != nil {
		return nil, err
	}
	// go-redis returns 0 for missing members with no way to distinguish
	// "score is zero" from "missing" in ZMScore directly, so fall back to
	// ZScore per-member only when a definitive answer is needed by the
	// caller (request store does this via ZScore already).
	out := make([]*float64, len(scores))
	for i := range scores {
		v := scores[i]
		out[i] = &v
	}
	return out, nil
}

func (s *redisStore) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := s.client.ZScore(ctx, key, member).Result()
	return v, translateErr(err)
}

func (s *redisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

func (s *redisStore) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return s.client.RPush(ctx, key, toAny(values)...).Err()
}

func (s *redisStore) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return s.client.LPush(ctx, key, toAny(values)...).Err()
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *redisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

func (s *redisStore) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	return s.client.LRem(ctx, key, count, value).Result()
}

func (s *redisStore) LMove(ctx context.Context, source, destination string, fromLeft, toLeft bool) (string, bool, error) {
	v, err := s.client.LMove(ctx, source, destination, side(fromLeft), side(toLeft)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// pipeliner adapts a redis.Pipeliner to the Pipeliner interface, queuing
// commands without executing them until the caller's Pipeline/RunTx wrapper
// calls Exec.
type pipeliner struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (p *pipeliner) Set(key, value string) {
	p.p.Set(p.ctx, key, value, 0)
}

func (p *pipeliner) SetEX(key, value string, ttl time.Duration) {
	p.p.Set(p.ctx, key, value, ttl)
}

func (p *pipeliner) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	p.p.Del(p.ctx, keys...)
}

func (p *pipeliner) Expire(key string, ttl time.Duration) {
	p.p.Expire(p.ctx, key, ttl)
}

func (p *pipeliner) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	p.p.SAdd(p.ctx, key, toAny(members)...)
}

func (p *pipeliner) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	p.p.SRem(p.ctx, key, toAny(members)...)
}

func (p *pipeliner) ZAdd(key string, members ...Z) {
	if len(members) == 0 {
		return
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	p.p.ZAdd(p.ctx, key, zs...)
}

func (p *pipeliner) ZRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	p.p.ZRem(p.ctx, key, toAny(members)...)
}

func (p *pipeliner) RPush(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	p.p.RPush(p.ctx, key, toAny(values)...)
}

func (p *pipeliner) LRem(key string, count int64, value string) {
	p.p.LRem(p.ctx, key, count, value)
}

// Pipeline executes fn against a server-side MULTI/EXEC pipeline.
func (s *redisStore) Pipeline(ctx context.Context, fn func(p Pipeliner)) error {
	_, err := s.client.TxPipelined(ctx, func(tx redis.Pipeliner) error {
		fn(&pipeliner{ctx: ctx, p: tx})
		return nil
	})
	return err
}

// tx implements Tx over a redis.Tx opened by Watch. Queue defers its writes
// until the WATCH/MULTI/EXEC call in RunTx actually commits.
type tx struct {
	ctx    context.Context
	rtx    *redis.Tx
	queued []func(p Pipeliner)
}

func (t *tx) Get(ctx context.Context, key string) (string, error) {
	v, err := t.rtx.Get(ctx, key).Result()
	return v, translateErr(err)
}

func (t *tx) Queue(fn func(p Pipeliner)) {
	t.queued = append(t.queued, fn)
}

// RunTx opens a WATCH on keys, lets fn read consistent state and queue
// writes, then commits everything in one MULTI/EXEC. If any watched key
// changes before EXEC, go-redis returns redis.TxFailedErr and RunTx
// translates that to ErrAborted so callers can retry with bounded attempts.
func (s *redisStore) RunTx(ctx context.Context, keys []string, fn func(t Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		txn := &tx{ctx: ctx, rtx: rtx}
		if err := fn(txn); err != nil {
			return err
		}
		_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			wrapped := &pipeliner{ctx: ctx, p: p}
			for _, q := range txn.queued {
				q(wrapped)
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrAborted
	}
	return err
}

func side(left bool) string {
	if left {
		return "LEFT"
	}
	return "RIGHT"
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func floatStr(f float64) string {
	if f == negInf {
		return "-inf"
	}
	if f == posInf {
		return "+inf"
	}
	return redis.FormatFloat(f)
}

const (
	negInf = float64(-1) * (1 << 62)
	posInf = float64(1) * (1 << 62)
)

// NegInf / PosInf are sentinel scores callers pass to ZRangeByScore to mean
// "unbounded" (e.g. the gradient delayed-job reclaim ranges from NegInf up
// to now).
const (
	NegInf = negInf
	PosInf = posInf
)
