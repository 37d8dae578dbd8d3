package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wepaintai/wepaintai-sub000/cache"
)

type RedisPaintCache struct {
	client redis.UniversalClient
}

func NewRedisPaintCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisPaintCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisPaintCache{client: client}, nil
}

func (redisCache *RedisPaintCache) Publish(ctx context.Context, channel string, message []byte) error {
	if err := redisCache.client.Publish(ctx, channel, message).Err(); err != nil {
		return err
	}
	return nil
}

func (redisCache *RedisPaintCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		log.Printf("Pubsub channel closed: %s", channel)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Helper functions to generate Redis keys with hash tags for cluster compatibility
func buildSessionKey(sessionId string) string {
	return "session:{" + sessionId + "}"
}

func buildSessionDataKey(sessionId string) string {
	return "session:{" + sessionId + "}:data"
}

func buildSessionCompleteKey(sessionId string) string {
	return "session:{" + sessionId + "}:complete"
}

func buildTempStrokeKey(sessionId string, tempId string) string {
	return "session:{" + sessionId + "}:temp:" + tempId
}

const cacheTTL = 10 * time.Minute

// Tracked strokes live in two structures per session:
// 1. ZSet ("session:{id}"): StrokeIDs scored by commit Order.
//   - Keeps replay order and allows O(1) removal by ID (ZREM).
//
// 2. Hash ("session:{id}:data"): StrokeID -> JSON blob.
//   - O(1) payload retrieval (HMGET) after reading IDs from the ZSet.
//
// Soft-delete flips (undo/redo) re-add the same member with the same
// score and an updated blob, so the ZSet stays stable while the payload
// carries the current Deleted flag.
func (redisCache *RedisPaintCache) AddStroke(ctx context.Context, sessionId string, strokeId string, order int64, strokeData []byte) error {
	key := buildSessionKey(sessionId)
	dataKey := buildSessionDataKey(sessionId)
	completeKey := buildSessionCompleteKey(sessionId)

	pipe := redisCache.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(order), Member: strokeId})
	pipe.HSet(ctx, dataKey, strokeId, strokeData)
	pipe.Expire(ctx, completeKey, cacheTTL)
	pipe.Expire(ctx, key, cacheTTL)
	pipe.Expire(ctx, dataKey, cacheTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (redisCache *RedisPaintCache) AddStrokesBatch(ctx context.Context, sessionId string, strokes []cache.StrokeCacheItem) error {
	if len(strokes) == 0 {
		return nil
	}

	key := buildSessionKey(sessionId)
	dataKey := buildSessionDataKey(sessionId)
	completeKey := buildSessionCompleteKey(sessionId)

	zMembers := make([]redis.Z, len(strokes))
	// A flat list of key, value, key, value... is most efficient for HSet in go-redis
	hValues := make([]interface{}, len(strokes)*2)

	for i, s := range strokes {
		zMembers[i] = redis.Z{
			Score:  float64(s.Order),
			Member: s.StrokeId,
		}
		hValues[i*2] = s.StrokeId
		hValues[i*2+1] = s.Data
	}

	pipe := redisCache.client.Pipeline()
	pipe.ZAdd(ctx, key, zMembers...)
	pipe.HSet(ctx, dataKey, hValues...)
	pipe.Expire(ctx, completeKey, cacheTTL)
	pipe.Expire(ctx, key, cacheTTL)
	pipe.Expire(ctx, dataKey, cacheTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (redisCache *RedisPaintCache) RemoveStroke(ctx context.Context, sessionId string, strokeId string) error {
	key := buildSessionKey(sessionId)
	dataKey := buildSessionDataKey(sessionId)
	completeKey := buildSessionCompleteKey(sessionId)

	pipe := redisCache.client.Pipeline()
	pipe.ZRem(ctx, key, strokeId)
	pipe.HDel(ctx, dataKey, strokeId)
	pipe.Expire(ctx, completeKey, cacheTTL)
	pipe.Expire(ctx, key, cacheTTL)
	pipe.Expire(ctx, dataKey, cacheTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetSessionStrokeCount returns the number of cached strokes using ZCard.
// This is the source of truth for session quota checks while the session
// is resident in cache.
func (redisCache *RedisPaintCache) GetSessionStrokeCount(ctx context.Context, sessionId string) (int64, error) {
	key := buildSessionKey(sessionId)
	count, err := redisCache.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (redisCache *RedisPaintCache) GetStrokesSince(ctx context.Context, sessionId string, afterOrder int64) ([][]byte, error) {
	key := buildSessionKey(sessionId)
	dataKey := buildSessionDataKey(sessionId)
	completeKey := buildSessionCompleteKey(sessionId)

	// 1. Get IDs with score strictly greater than afterOrder
	ids, err := redisCache.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(afterOrder, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return [][]byte{}, nil
	}

	// 2. Fetch data from Hash
	dataMap, err := redisCache.client.HMGet(ctx, dataKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	// 3. Assemble result
	strokes := make([][]byte, 0, len(ids))
	for _, item := range dataMap {
		if item == nil {
			continue // Should not happen if consistency is maintained
		}
		if s, ok := item.(string); ok {
			strokes = append(strokes, []byte(s))
		}
	}

	// Refresh TTL
	pipe := redisCache.client.Pipeline()
	pipe.Expire(ctx, completeKey, cacheTTL)
	pipe.Expire(ctx, key, cacheTTL)
	pipe.Expire(ctx, dataKey, cacheTTL)
	_, _ = pipe.Exec(ctx)

	return strokes, nil
}

func (redisCache *RedisPaintCache) SetSessionComplete(ctx context.Context, sessionId string) error {
	completeKey := buildSessionCompleteKey(sessionId)
	return redisCache.client.Set(ctx, completeKey, "true", cacheTTL).Err()
}

func (redisCache *RedisPaintCache) IsSessionComplete(ctx context.Context, sessionId string) (bool, error) {
	completeKey := buildSessionCompleteKey(sessionId)
	val, err := redisCache.client.Exists(ctx, completeKey).Result()
	if err != nil {
		return false, err
	}
	return val > 0, nil
}

func (redisCache *RedisPaintCache) InvalidateSessions(ctx context.Context, sessionIds []string) error {
	if len(sessionIds) == 0 {
		return nil
	}

	// In Redis Cluster, keys with different hash tags hash to different slots.
	// We must delete each session separately, but the 3 keys within one
	// session share a hash tag and can go in one DEL.
	for _, sessionId := range sessionIds {
		key := buildSessionKey(sessionId)
		dataKey := buildSessionDataKey(sessionId)
		completeKey := buildSessionCompleteKey(sessionId)

		if err := redisCache.client.Del(ctx, key, dataKey, completeKey).Err(); err != nil {
			return err
		}
	}

	return nil
}

// Temp-id dedup map. A retried commit with the same temp id must not be
// assigned a second order, so the first commit claims the temp id with
// SETNX and retries resolve it back to the original assignment.
const tempStrokeTTL = 5 * time.Minute

func (redisCache *RedisPaintCache) RememberTempStroke(ctx context.Context, sessionId string, tempId string, strokeId string, order int64) (bool, error) {
	key := buildTempStrokeKey(sessionId, tempId)
	val := strokeId + "#" + strconv.FormatInt(order, 10)
	return redisCache.client.SetNX(ctx, key, val, tempStrokeTTL).Result()
}

func (redisCache *RedisPaintCache) LookupTempStroke(ctx context.Context, sessionId string, tempId string) (string, int64, bool, error) {
	key := buildTempStrokeKey(sessionId, tempId)
	val, err := redisCache.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}

	sep := strings.LastIndex(val, "#")
	if sep < 0 {
		return "", 0, false, fmt.Errorf("malformed temp stroke entry: %q", val)
	}
	order, err := strconv.ParseInt(val[sep+1:], 10, 64)
	if err != nil {
		return "", 0, false, fmt.Errorf("malformed temp stroke order: %q", val)
	}
	return val[:sep], order, true, nil
}
