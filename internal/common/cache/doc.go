// Package cache provides expiring key sets used to remember which queue
// messages have already been applied.
//
// Two backends:
//   - LocalCache, on github.com/patrickmn/go-cache, for a single node
//   - RedisCache, on SETNX with a TTL, shared by every node that may lead
//
// Usage:
//
//	seen := cache.NewLocalCache(5*time.Minute, 10*time.Minute)
//	added, _ := seen.Add(ctx, msg.ID, 5*time.Minute)
//	if !added {
//		// already applied
//	}
package cache
