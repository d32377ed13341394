package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || !cfg.IsDevelopment() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.PropertyStore != BackendSQLite || cfg.Directory != BackendSQLite || cfg.Transport != BackendNATS {
		t.Fatalf("unexpected backends %+v", cfg)
	}
	if cfg.ServiceAddress() != "sendmessage.localhost" {
		t.Fatalf("unexpected service address %q", cfg.ServiceAddress())
	}
	if cfg.TrustProxyHeaders {
		t.Fatal("proxy headers must not be trusted by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DOMAIN", "Example.COM")
	t.Setenv("TRANSPORT", "redis")
	t.Setenv("PROPERTY_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Domain != "example.com" {
		t.Fatalf("expected lowercased domain, got %q", cfg.Domain)
	}
	if !cfg.UsesBackend(BackendRedis) || cfg.UsesBackend(BackendPostgres) {
		t.Fatalf("unexpected backends %+v", cfg)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatal("expected proxy headers to be trusted")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"PROPERTY_STORE": "etcd"}, "PROPERTY_STORE"},
		{map[string]string{"DIRECTORY": "redis"}, "DIRECTORY"},
		{map[string]string{"TRANSPORT": "smtp"}, "TRANSPORT"},
		{map[string]string{"DIRECTORY": "postgres"}, "DATABASE_URL"},
		{map[string]string{"TRANSPORT": "redis"}, "REDIS_URL"},
		{map[string]string{"ENV": "production", "PROPERTY_STORE": "memory"}, "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
