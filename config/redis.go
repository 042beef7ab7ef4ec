package config

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis returns nil when Redis is not configured or unreachable;
// callers fall back to in-process implementations.
func ConnectRedis(s *Settings) *redis.Client {
	if s.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, using in-process event bus and token blacklist")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         s.RedisAddr,
		Password:     s.RedisPassword,
		DB:           s.RedisDB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		log.Println("Falling back to in-process event bus and token blacklist")
		client.Close()
		return nil
	}

	log.Println("Connected to Redis")
	return client
}
