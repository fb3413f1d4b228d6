// Package ratelimit implements the two admission gates in front of every
// endpoint: a per-node LeakyBucket shared by all callers of the endpoint,
// and the quota Engine that checks a client's multi-period limits against
// shared state.
//
// # Usage
//
//	buckets, _ := ratelimit.NewBuckets(ratelimit.DefaultBucketConfig(), nil)
//	engine := ratelimit.NewEngine(store, publisher)
//
//	adm := &ratelimit.Admission{Endpoint: buckets.For("orders:POST"), Clients: engine}
//	router.Handle("/orders", adm.Middleware("orders", "POST")(createOrder))
//
// The engine never writes quota state. Allowed calls are handed to a
// Publisher as ThrottleEvents; the consumer applies them later, so limits
// are enforced with a delay of roughly one pipeline pass.
package ratelimit
