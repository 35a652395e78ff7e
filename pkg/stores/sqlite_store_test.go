package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a SQLite store backed by a temp file for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testServer(name string) *Server {
	now := time.Now()
	return &Server{
		ID:         "srv-" + name,
		Name:       name,
		Address:    name + ".example.com",
		Port:       22,
		User:       "deploy",
		AuthMethod: "key",
		KeyPath:    "/home/deploy/.ssh/id_ed25519",
		Labels:     `{"env":"test"}`,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"servers", "operations"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestServerCRUD tests server CRUD operations
func TestServerCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Create
	server := testServer("web-1")
	if err := store.CreateServer(ctx, server); err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	// Read
	retrieved, err := store.GetServer(ctx, "web-1")
	if err != nil {
		t.Fatalf("failed to get server: %v", err)
	}

	if retrieved.ID != server.ID {
		t.Errorf("expected ID %s, got %s", server.ID, retrieved.ID)
	}
	if retrieved.Address != server.Address {
		t.Errorf("expected Address %s, got %s", server.Address, retrieved.Address)
	}
	if retrieved.AuthMethod != server.AuthMethod {
		t.Errorf("expected AuthMethod %s, got %s", server.AuthMethod, retrieved.AuthMethod)
	}

	// Update
	retrieved.Address = "web-1.internal"
	retrieved.Port = 2222
	if err := store.UpdateServer(ctx, retrieved); err != nil {
		t.Fatalf("failed to update server: %v", err)
	}

	updated, err := store.GetServer(ctx, "web-1")
	if err != nil {
		t.Fatalf("failed to get updated server: %v", err)
	}
	if updated.Address != "web-1.internal" {
		t.Errorf("expected updated address, got %s", updated.Address)
	}
	if updated.Port != 2222 {
		t.Errorf("expected updated port, got %d", updated.Port)
	}

	// Delete
	if err := store.DeleteServer(ctx, "web-1"); err != nil {
		t.Fatalf("failed to delete server: %v", err)
	}

	if _, err := store.GetServer(ctx, "web-1"); err == nil {
		t.Error("expected error getting deleted server")
	}
}

// TestServerNotFound tests error handling for missing servers
func TestServerNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if _, err := store.GetServer(ctx, "missing"); err == nil {
		t.Error("expected error for missing server")
	}

	if err := store.DeleteServer(ctx, "missing"); err == nil {
		t.Error("expected error deleting missing server")
	}

	if err := store.UpdateServer(ctx, testServer("missing")); err == nil {
		t.Error("expected error updating missing server")
	}
}

// TestServerUniqueName tests the unique constraint on server names
func TestServerUniqueName(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.CreateServer(ctx, testServer("web-1")); err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	dup := testServer("web-1")
	dup.ID = "srv-other"
	if err := store.CreateServer(ctx, dup); err == nil {
		t.Error("expected error creating server with duplicate name")
	}
}

// TestListServers tests listing and ordering
func TestListServers(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for _, name := range []string{"web-2", "db-1", "web-1"} {
		if err := store.CreateServer(ctx, testServer(name)); err != nil {
			t.Fatalf("failed to create server %s: %v", name, err)
		}
	}

	servers, err := store.ListServers(ctx)
	if err != nil {
		t.Fatalf("failed to list servers: %v", err)
	}

	if len(servers) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(servers))
	}

	// Ordered by name
	want := []string{"db-1", "web-1", "web-2"}
	for i, server := range servers {
		if server.Name != want[i] {
			t.Errorf("expected server %s at index %d, got %s", want[i], i, server.Name)
		}
	}
}

// TestOperationLog tests appending and listing operation entries
func TestOperationLog(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	deployment := "app.tar.gz"
	message := "uploaded 1024 bytes"
	entries := []*OperationEntry{
		{Server: "web-1", Kind: OperationConnect, Outcome: "succeeded"},
		{Server: "web-1", Kind: OperationDeploy, Deployment: &deployment, Outcome: "succeeded", Message: &message},
		{Server: "web-2", Kind: OperationConnect, Outcome: "failed"},
	}

	for i, entry := range entries {
		entry.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.AppendOperation(ctx, entry); err != nil {
			t.Fatalf("failed to append operation: %v", err)
		}
		if entry.ID == 0 {
			t.Error("expected assigned operation ID")
		}
	}

	// All entries, most recent first
	all, err := store.ListOperations(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(all))
	}
	if all[0].Server != "web-2" {
		t.Errorf("expected most recent entry first, got server %s", all[0].Server)
	}

	// Filtered by server
	server := "web-1"
	filtered, err := store.ListOperations(ctx, &server, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered operations: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 operations for web-1, got %d", len(filtered))
	}
	for _, entry := range filtered {
		if entry.Server != "web-1" {
			t.Errorf("unexpected server in filtered list: %s", entry.Server)
		}
	}

	// Deployment and message round-trip
	var deployEntry *OperationEntry
	for _, entry := range filtered {
		if entry.Kind == OperationDeploy {
			deployEntry = entry
		}
	}
	if deployEntry == nil {
		t.Fatal("expected deploy entry")
	}
	if deployEntry.Deployment == nil || *deployEntry.Deployment != deployment {
		t.Error("expected deployment name on deploy entry")
	}
	if deployEntry.Message == nil || *deployEntry.Message != message {
		t.Error("expected message on deploy entry")
	}
}

// TestOperationLogPagination tests limit and offset
func TestOperationLogPagination(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := &OperationEntry{
			Server:    "web-1",
			Kind:      OperationRefresh,
			Outcome:   "succeeded",
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendOperation(ctx, entry); err != nil {
			t.Fatalf("failed to append operation: %v", err)
		}
	}

	page, err := store.ListOperations(ctx, nil, 2, 0)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	rest, err := store.ListOperations(ctx, nil, 10, 2)
	if err != nil {
		t.Fatalf("failed to list remaining operations: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining, got %d", len(rest))
	}
}
