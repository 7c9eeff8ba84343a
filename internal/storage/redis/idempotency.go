// Package redis stores checkout responses by idempotency key so that a retried
// request replays the first response instead of placing a second order.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
)

// ErrInProgress is returned by Begin while another request with the same key
// is still being processed.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const pendingMarker = "pending"

// Response is a stored HTTP response.
type Response struct {
	Status int
	Body   []byte
}

// IdempotencyStore keeps a pending marker while a request runs and the final
// response afterwards.
type IdempotencyStore struct {
	client     redis.UniversalClient
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewIdempotencyStore creates a store keeping responses for ttl. A pending
// marker expires after pendingTTL so that a crashed request does not block
// the key forever.
func NewIdempotencyStore(client redis.UniversalClient, ttl, pendingTTL time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client:     client,
		ttl:        ttl,
		pendingTTL: pendingTTL,
	}
}

// Begin claims key for the user. It returns (nil, nil) when the caller owns
// the key and must process the request, a stored response to replay, or
// ErrInProgress.
func (s *IdempotencyStore) Begin(ctx context.Context, userID, key string) (*Response, error) {
	k := storeKey(userID, key)

	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if ok {
		return nil, nil
	}

	data, err := s.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; try once more.
		return s.claimAgain(ctx, k)
	case err != nil:
		return nil, errors.Wrap(err, "get idempotency key")
	case string(data) == pendingMarker:
		return nil, ErrInProgress
	}

	resp, err := decodeResponse(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored response")
	}
	return resp, nil
}

func (s *IdempotencyStore) claimAgain(ctx context.Context, k string) (*Response, error) {
	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if !ok {
		return nil, ErrInProgress
	}
	return nil, nil
}

// Finish stores the response for key.
func (s *IdempotencyStore) Finish(ctx context.Context, userID, key string, resp Response) error {
	if err := s.client.Set(ctx, storeKey(userID, key), encodeResponse(resp), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store response")
	}
	return nil
}

// Abort releases key so the request can be retried.
func (s *IdempotencyStore) Abort(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, storeKey(userID, key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

func storeKey(userID, key string) string {
	return fmt.Sprintf("idem:checkout:%s:%s", userID, key)
}

func encodeResponse(r Response) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("status", func(e *jx.Encoder) { e.Int(r.Status) })
	e.Field("body", func(e *jx.Encoder) { e.Base64(r.Body) })
	e.ObjEnd()
	return append([]byte(nil), e.Bytes()...)
}

func decodeResponse(data []byte) (*Response, error) {
	var r Response
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Int()
			r.Status = v
			return err
		case "body":
			v, err := d.Base64()
			r.Body = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	return &r, nil
}
