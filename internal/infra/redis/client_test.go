package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/infra/config"
)

func TestOptionsFromDiscreteFields(t *testing.T) {
	opts, err := Options(config.RedisSettings{Host: "cache", Port: 6380, DB: 2, Password: "s3cret", PoolSize: 25, TLSEnabled: true})
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "s3cret" {
		t.Fatalf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
	if opts.PoolSize != 25 {
		t.Fatalf("expected pool size 25, got %d", opts.PoolSize)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected tls config")
	}
}

func TestOptionsURLOverridesFields(t *testing.T) {
	opts, err := Options(config.RedisSettings{URL: "rediss://:pw@managed.example.com:6390/3", Host: "ignored", Port: 1})
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Addr != "managed.example.com:6390" || opts.DB != 3 || opts.Password != "pw" {
		t.Fatalf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
	if opts.TLSConfig == nil {
		t.Fatal("rediss scheme must enable tls")
	}

	if _, err := Options(config.RedisSettings{URL: "http://nope"}); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}

func TestNewClientHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	client, err := NewClient(context.Background(), config.RedisSettings{Host: mr.Host(), Port: port}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	mr.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail once redis is gone")
	}
	_ = client.Close()
}
