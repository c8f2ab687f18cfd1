package config

import (
	"context"
	"testing"

	"github.com/marmos91/dittovfs/pkg/store"
)

func TestCreateStore_Memory(t *testing.T) {
	s, err := CreateStore(context.Background(), &StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer func() { _ = s.Close() }()

	p := &store.Provider{Type: "local", Name: "scratch"}
	if err := s.CreateProvider(context.Background(), p); err != nil {
		t.Fatalf("Memory store rejected a provider: %v", err)
	}
	if p.ID == "" {
		t.Error("Expected an assigned provider ID")
	}
}

func TestCreateStore_BadgerInMemory(t *testing.T) {
	s, err := CreateStore(context.Background(), &StoreConfig{
		Type: "badger",
		Badger: map[string]any{
			"in_memory":           true,
			"block_cache_size_mb": "16",
		},
	})
	if err != nil {
		t.Fatalf("Failed to create badger store: %v", err)
	}
	defer func() { _ = s.Close() }()

	p := &store.Provider{Type: "local", Name: "scratch"}
	if err := s.CreateProvider(context.Background(), p); err != nil {
		t.Fatalf("Badger store rejected a provider: %v", err)
	}
	got, err := s.GetProvider(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Failed to read provider back: %v", err)
	}
	if got.Name != "scratch" {
		t.Errorf("Expected name 'scratch', got %q", got.Name)
	}
}

func TestCreateStore_BadgerOnDisk(t *testing.T) {
	s, err := CreateStore(context.Background(), &StoreConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": t.TempDir()},
	})
	if err != nil {
		t.Fatalf("Failed to create badger store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCreateStore_BadgerUnknownOption(t *testing.T) {
	_, err := CreateStore(context.Background(), &StoreConfig{
		Type:   "badger",
		Badger: map[string]any{"in_memory": true, "cache_ttl": "5m"},
	})
	if err == nil {
		t.Fatal("Expected error for unknown badger option, got nil")
	}
}

func TestCreateStore_BadgerMissingPath(t *testing.T) {
	_, err := CreateStore(context.Background(), &StoreConfig{
		Type:   "badger",
		Badger: map[string]any{},
	})
	if err == nil {
		t.Fatal("Expected error for missing db_path, got nil")
	}
}

func TestCreateStore_UnknownType(t *testing.T) {
	_, err := CreateStore(context.Background(), &StoreConfig{Type: "postgres"})
	if err == nil {
		t.Fatal("Expected error for unknown store type, got nil")
	}
}

func TestCreateStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := CreateStore(ctx, &StoreConfig{Type: "memory"}); err == nil {
		t.Fatal("Expected error with canceled context, got nil")
	}
}

func TestCreateCipher(t *testing.T) {
	c, err := CreateCipher(&CredentialsConfig{Secret: "0123456789abcdef", Salt: "salt-1234"})
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}

	sealed, err := c.Encrypt(map[string]any{"token": "abc", "bucket": "b"}, []string{"token"})
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	opened, err := c.Decrypt(sealed, []string{"token"})
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if opened["token"] != "abc" {
		t.Errorf("Expected token round trip, got %v", opened["token"])
	}

	if _, err := CreateCipher(&CredentialsConfig{Secret: "0123456789abcdef", Salt: "short"}); err == nil {
		t.Error("Expected error for short salt, got nil")
	}
}

func TestInitializeRegistry(t *testing.T) {
	reg, err := InitializeRegistry()
	if err != nil {
		t.Fatalf("InitializeRegistry failed: %v", err)
	}

	want := map[string]bool{"s3": false, "webdav": false, "gdrive": false, "local": false}
	for _, typ := range reg.Types() {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, found := range want {
		if !found {
			t.Errorf("Expected provider type %q to be registered", typ)
		}
	}

	if _, err := reg.Lookup("memory"); err == nil {
		t.Error("The memory provider is for tests and must not be registered")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	res := InitializeMetrics(&Config{})

	if res.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if res.SyncMetrics != nil || res.TransferMetrics != nil {
		t.Error("Expected nil collectors when disabled")
	}
}

func TestInitializeMetrics_Enabled(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Metrics: MetricsConfig{Enabled: true, Port: 19090}}}

	res := InitializeMetrics(cfg)

	if res.Server == nil {
		t.Fatal("Expected a metrics server")
	}
	if res.Server.Port() != 19090 {
		t.Errorf("Expected port 19090, got %d", res.Server.Port())
	}
	if res.SyncMetrics == nil || res.TransferMetrics == nil {
		t.Error("Expected Prometheus collectors when enabled")
	}
}
