// Package redisstore keeps device tokens in Redis instead of the SQLite file.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/storage"
)

const tokenPrefix = "remeha:tokens:"

// Store implements the device token store with one hash per device.
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed token store.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open parses url and connects.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	store := New(redis.NewClient(opts))
	if err := store.CheckHealth(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func key(id string) string {
	return tokenPrefix + id
}

// LoadTokens returns storage.ErrNotFound when no tokens were saved for id.
func (s *Store) LoadTokens(ctx context.Context, id string) (model.TokenData, error) {
	fields, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return model.TokenData{}, fmt.Errorf("loading tokens: %w", err)
	}
	if len(fields) == 0 {
		return model.TokenData{}, fmt.Errorf("%w: tokens for %s", storage.ErrNotFound, id)
	}

	tokens := model.TokenData{
		AccessToken:  fields["access_token"],
		TokenType:    fields["token_type"],
		RefreshToken: fields["refresh_token"],
		Scope:        fields["scope"],
	}
	if v, err := strconv.ParseInt(fields["expires_in"], 10, 64); err == nil {
		tokens.ExpiresIn = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields["expires_at"]); err == nil {
		tokens.ExpiresAt = v.UTC()
	}
	return tokens, nil
}

func (s *Store) SaveTokens(ctx context.Context, id string, tokens model.TokenData) error {
	expiresAt := ""
	if !tokens.ExpiresAt.IsZero() {
		expiresAt = tokens.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	err := s.client.HSet(ctx, key(id), map[string]any{
		"access_token":  tokens.AccessToken,
		"token_type":    tokens.TokenType,
		"refresh_token": tokens.RefreshToken,
		"scope":         tokens.Scope,
		"expires_in":    strconv.FormatInt(tokens.ExpiresIn, 10),
		"expires_at":    expiresAt,
	}).Err()
	if err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}
	return nil
}

func (s *Store) DeleteTokens(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("deleting tokens: %w", err)
	}
	return nil
}

// CheckHealth verifies Redis connectivity.
func (s *Store) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
