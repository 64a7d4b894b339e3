// Package cache provides the validation cache used on the authentication
// hot path.
//
// ValidationCache is a key/value store with absolute expiry: an entry is
// absent once its TTL has elapsed, whether or not it has been physically
// removed yet. Two backends are available:
//
//   - memory: a mutex-guarded map with lazy eviction on read and a
//     periodic sweep
//   - redis: values encoded as JSON under hashed keys, expiry delegated to
//     Redis
//
// Backend failures never surface to callers. Reads degrade to a miss and
// writes are logged and dropped, so a broken cache only costs a store
// round trip.
package cache
