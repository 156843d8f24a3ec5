// Package store opens the item store named by a database URL. Backends live in
// the memory, sqlite, and postgres subpackages.
package store
