package heldsales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("held sale not found")

// Store keeps parked carts in Redis. Each sale lives under its own key with
// a TTL; a per-store set indexes the hold IDs so List does not need SCAN.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) Save(ctx context.Context, h cart.HeldSale) error {
	if h.HoldID == "" {
		return errors.New("held sale has no hold id")
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal held sale failed: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, heldKey(h.StoreID, h.HoldID), data, s.ttl)
		pipe.SAdd(ctx, indexKey(h.StoreID), h.HoldID)
		pipe.Expire(ctx, indexKey(h.StoreID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save held sale failed: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, storeID, holdID string) (*cart.HeldSale, error) {
	data, err := s.client.Get(ctx, heldKey(storeID, holdID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get held sale failed: %w", err)
	}

	var h cart.HeldSale
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unmarshal held sale failed: %w", err)
	}
	return &h, nil
}

// List returns the store's held sales, oldest first. Index entries whose
// sale has expired are pruned along the way.
func (s *Store) List(ctx context.Context, storeID string) ([]cart.HeldSale, error) {
	ids, err := s.client.SMembers(ctx, indexKey(storeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list held sales failed: %w", err)
	}
	if len(ids) == 0 {
		return []cart.HeldSale{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = heldKey(storeID, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget held sales failed: %w", err)
	}

	sales := make([]cart.HeldSale, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var h cart.HeldSale
		if err := json.Unmarshal([]byte(str), &h); err != nil {
			return nil, fmt.Errorf("unmarshal held sale %s failed: %w", ids[i], err)
		}
		sales = append(sales, h)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, indexKey(storeID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis prune held index failed: %w", err)
		}
	}

	sort.Slice(sales, func(i, j int) bool {
		return sales[i].HeldAt.Before(sales[j].HeldAt)
	})
	return sales, nil
}

// Delete removes a held sale. It returns ErrNotFound if nothing was stored
// under holdID.
func (s *Store) Delete(ctx context.Context, storeID, holdID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, heldKey(storeID, holdID))
		pipe.SRem(ctx, indexKey(storeID), holdID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete held sale failed: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func heldKey(storeID, holdID string) string {
	return fmt.Sprintf("held:%s:%s", storeID, holdID)
}

func indexKey(storeID string) string {
	return fmt.Sprintf("held-index:%s", storeID)
}
