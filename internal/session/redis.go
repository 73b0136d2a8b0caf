package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/convtest/internal/config"
	"github.com/roach88/convtest/internal/turn"
)

// Redis stores sessions in Redis:
//
//	<prefix>:session:<id>        hash: agent_ref, metadata, status, created_at, ended_at
//	<prefix>:session:<id>:steps  list of step result JSON
//
// Both keys expire after the configured TTL; zero keeps them forever.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to the server described by cfg.
func NewRedis(cfg config.Session) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(id string) string      { return r.prefix + ":session:" + id }
func (r *Redis) stepsKey(id string) string { return r.key(id) + ":steps" }

// CreateSession stores a new active session.
func (r *Redis) CreateSession(ctx context.Context, agentRef string, meta map[string]any) (string, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("create session: marshal metadata: %w", err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	key := r.key(id)

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"agent_ref", agentRef,
			"metadata", string(metaJSON),
			"status", StatusActive,
			"created_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// UpdateSession appends a step to an active session.
func (r *Redis) UpdateSession(ctx context.Context, sessionID string, step *turn.StepResult) error {
	status, err := r.client.HGet(ctx, r.key(sessionID), "status").Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("update session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	if status != StatusActive {
		return fmt.Errorf("update session %s: session is %s", sessionID, status)
	}

	data, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("update session %s: marshal step: %w", sessionID, err)
	}

	stepsKey := r.stepsKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, stepsKey, data)
		if r.ttl > 0 {
			p.Expire(ctx, stepsKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return nil
}

// EndSession marks a session ended. Ending an ended session is a no-op.
func (r *Redis) EndSession(ctx context.Context, sessionID string) error {
	key := r.key(sessionID)
	status, err := r.client.HGet(ctx, key, "status").Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("end session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	if status == StatusEnded {
		return nil
	}

	err = r.client.HSet(ctx, key,
		"status", StatusEnded,
		"ended_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}

// Get loads a session with all of its steps.
func (r *Redis) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("get session %s: %w", sessionID, ErrNotFound)
	}

	s := &Session{
		ID:       sessionID,
		AgentRef: fields["agent_ref"],
		Status:   fields["status"],
		Metadata: map[string]any{},
		Steps:    []turn.StepResult{},
	}
	if err := json.Unmarshal([]byte(fields["metadata"]), &s.Metadata); err != nil {
		return nil, fmt.Errorf("get session %s: metadata: %w", sessionID, err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("get session %s: created_at: %w", sessionID, err)
	}
	if v := fields["ended_at"]; v != "" {
		ended, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("get session %s: ended_at: %w", sessionID, err)
		}
		s.EndedAt = &ended
	}

	raw, err := r.client.LRange(ctx, r.stepsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get session %s: steps: %w", sessionID, err)
	}
	for _, item := range raw {
		var step turn.StepResult
		if err := json.Unmarshal([]byte(item), &step); err != nil {
			return nil, fmt.Errorf("get session %s: step: %w", sessionID, err)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}
