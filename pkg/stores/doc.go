// Package stores provides persistence layer implementations for berthd.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and CRUD operations for the server registry and the operation log.
package stores
