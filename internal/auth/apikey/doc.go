// Package apikey implements the static key strategy: a cache-first lookup
// of principals by their secret value, falling back to a principal store.
// Cached principals are re-checked for validity on every hit.
package apikey
