package redisstore

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection
func NewClient(addr string, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("[REDIS] Connected to %s\n", addr)

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks that the server still answers
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Window returns the shared intake buffer backed by this client
func (c *Client) Window() *Window {
	return &Window{rdb: c.rdb, prefix: "intake:"}
}

// Cooldown returns the shared cooldown gate backed by this client
func (c *Client) Cooldown() *CooldownGate {
	return &CooldownGate{rdb: c.rdb, prefix: "cooldown:"}
}
