package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codorachat/pkg/database"
	"codorachat/pkg/interfaces"
	"codorachat/pkg/types"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := database.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	if err := database.NewMigrationManager(manager.GetDB()).ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return manager
}

func testUser(username string) *types.User {
	return &types.User{
		ID:           "id-" + username,
		Username:     username,
		PasswordHash: "hash-" + username,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.UserStore = &Manager{}
}

func TestManager_CreateAndGetUser(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	user := testUser("alice")
	if err := manager.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := manager.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}

	if got.ID != user.ID {
		t.Errorf("Expected ID %s, got %s", user.ID, got.ID)
	}
	if got.PasswordHash != user.PasswordHash {
		t.Errorf("Expected hash %s, got %s", user.PasswordHash, got.PasswordHash)
	}
	if !got.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("Expected CreatedAt %v, got %v", user.CreatedAt, got.CreatedAt)
	}
}

func TestManager_DuplicateUsername(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if err := manager.CreateUser(ctx, testUser("bob")); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	duplicate := testUser("bob")
	duplicate.ID = "another-id"
	if err := manager.CreateUser(ctx, duplicate); err != interfaces.ErrUserExists {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestManager_UserNotFound(t *testing.T) {
	manager := setupTestDB(t)

	_, err := manager.GetUserByUsername(context.Background(), "ghost")
	if err != interfaces.ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestManager_ConcurrentRegistrations(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- manager.CreateUser(ctx, testUser(fmt.Sprintf("user%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent CreateUser failed: %v", err)
		}
	}

	for i := 0; i < 20; i++ {
		if _, err := manager.GetUserByUsername(ctx, fmt.Sprintf("user%d", i)); err != nil {
			t.Errorf("user%d not found: %v", i, err)
		}
	}
}

func TestManager_HealthCheck(t *testing.T) {
	manager := setupTestDB(t)

	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	manager := setupTestDB(t)

	if err := manager.Close(); err != nil {
		t.Fatalf("First Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	if err := manager.CreateUser(context.Background(), testUser("late")); err == nil {
		t.Error("Expected error writing to a closed manager")
	}
}
