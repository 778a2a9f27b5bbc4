package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/pkg/config"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{
			name:  "single part",
			parts: []string{"products"},
		},
		{
			name:  "multiple parts",
			parts: []string{"products", "00ab12", "PROD-1"},
		},
		{
			name:  "empty parts",
			parts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}

	if HashKey("products", "a") == HashKey("products", "b") {
		t.Error("HashKey() should differ for different parts")
	}
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "chainguard_chain_v2",
			expected: "chainguard:chainguard_chain_v2",
		},
		{
			name:     "key with colon",
			key:      "products:abc",
			expected: "chainguard:products:abc",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "chainguard:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	c, err := New(&config.RedisConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c != nil {
		t.Fatalf("New() = %v, want nil cache when disabled", c)
	}
}

func TestCache_DisabledOperations(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Get() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Set(ctx, "k", "v", 0); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Set() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.SetJSON(ctx, "k", map[string]int{"a": 1}, 0); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("SetJSON() error = %v, want ErrCacheDisabled", err)
	}
	var dst map[string]int
	if err := c.GetJSON(ctx, "k", &dst); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("GetJSON() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Delete(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Delete() error = %v, want ErrCacheDisabled", err)
	}
	if _, err := c.Exists(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Exists() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Health(ctx); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Health() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
	if c.TTL() != 0 {
		t.Errorf("TTL() = %v, want 0", c.TTL())
	}
}

func TestLedgerBackend_Disabled(t *testing.T) {
	var backend ledger.Backend = NewLedgerBackend(nil, "chainguard_chain_v2")
	ctx := context.Background()

	if _, err := backend.Load(ctx); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Load() error = %v, want ErrCacheDisabled", err)
	}
	if err := backend.Save(ctx, []ledger.Block{}); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Save() error = %v, want ErrCacheDisabled", err)
	}
}
