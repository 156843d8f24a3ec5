// Package storage opens the optional raw payload archive selected by
// configuration. Backends live in the local, memory, and gcs subpackages.
package storage
