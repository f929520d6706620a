package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

const pendingMarker = "pending"

var ErrInFlight = errors.New("a request with this idempotency key is still in progress")

// Idempotency remembers checkout responses per buyer and client key.
type Idempotency struct{ R redis.Cmdable }

// Begin claims key for buyerID. It returns (nil, nil) when the caller owns the
// key and should run the request, the stored body when an earlier request
// already finished, or ErrInFlight while that request is still running.
func (s Idempotency) Begin(ctx context.Context, buyerID, key string) ([]byte, error) {
	k := fmt.Sprintf(KeyIdemCheckout, buyerID, key)
	ok, err := s.R.SetNX(ctx, k, pendingMarker, TTLIdemPending).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	v, err := s.R.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, err
	}
	if string(v) == pendingMarker {
		return nil, ErrInFlight
	}
	return v, nil
}

func (s Idempotency) Complete(ctx context.Context, buyerID, key string, body []byte) error {
	return s.R.Set(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key), body, TTLIdempotency).Err()
}

// Release frees key so the client may retry a failed request.
func (s Idempotency) Release(ctx context.Context, buyerID, key string) error {
	return s.R.Del(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Err()
}

// StatusCache holds JSON status views keyed by order id.
type StatusCache struct{ R redis.Cmdable }

// Get decodes the cached view into out. A miss returns false with no error.
func (c StatusCache) Get(ctx context.Context, orderID string, out any) (bool, error) {
	b, err := c.R.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c StatusCache) Put(ctx context.Context, orderID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// Claim marks event id as being handled by service. It reports false when the
// event was already claimed.
func Claim(ctx context.Context, rdb redis.Cmdable, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
}

// Forget drops a claim so a redelivered event is handled again.
func Forget(ctx context.Context, rdb redis.Cmdable, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}
