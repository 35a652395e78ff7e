package stores

import (
	"context"
	"time"
)

// OperationKind classifies entries in the operation log.
type OperationKind string

const (
	OperationConnect  OperationKind = "connect"
	OperationDeploy   OperationKind = "deploy"
	OperationUndeploy OperationKind = "undeploy"
	OperationRefresh  OperationKind = "refresh"
)

// Server represents a registered remote server.
type Server struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Port       int       `json:"port"`
	User       string    `json:"user"`
	AuthMethod string    `json:"auth_method"` // password or key
	KeyPath    string    `json:"key_path,omitempty"`
	Labels     string    `json:"labels"` // JSON blob
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OperationEntry represents an append-only operation log record.
type OperationEntry struct {
	ID         int64         `json:"id"`
	Server     string        `json:"server"`
	Kind       OperationKind `json:"kind"`
	Deployment *string       `json:"deployment,omitempty"`
	Outcome    string        `json:"outcome"` // succeeded, failed
	Message    *string       `json:"message,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Server operations
	CreateServer(ctx context.Context, server *Server) error
	GetServer(ctx context.Context, name string) (*Server, error)
	ListServers(ctx context.Context) ([]*Server, error)
	UpdateServer(ctx context.Context, server *Server) error
	DeleteServer(ctx context.Context, name string) error

	// Operation log
	AppendOperation(ctx context.Context, entry *OperationEntry) error
	ListOperations(ctx context.Context, server *string, limit, offset int) ([]*OperationEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
