// Package preferences persists per-device UI state in Redis.
package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldLanguage        = "language"
	fieldCurrentTenantID = "currentTenantId"
	fieldBusinessContext = "businessContext"
	fieldAccessMode      = "accessMode"
	fieldDemoEmail       = "demoEmail"
)

var (
	ErrInvalidLanguage   = errors.New("unsupported language")
	ErrInvalidAccessMode = errors.New("invalid access mode")
)

// Preferences is the persisted state of one device. Missing fields load as
// their defaults.
type Preferences struct {
	Language        domain.Language        `json:"language"`
	CurrentTenantID *uuid.UUID             `json:"current_tenant_id,omitempty"`
	BusinessContext domain.BusinessContext `json:"business_context"`
	AccessMode      domain.AccessMode      `json:"access_mode"`
	DemoEmail       string                 `json:"demo_email,omitempty"`
}

func Defaults() Preferences {
	return Preferences{
		Language:        domain.LanguageEnglish,
		BusinessContext: domain.DefaultBusinessContext(),
		AccessMode:      domain.AccessModeNone,
	}
}

// RedisStore keeps one hash per device under prefs:<deviceID>. Every write
// refreshes the TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(deviceID string) string {
	return "prefs:" + deviceID
}

func (s *RedisStore) Load(ctx context.Context, deviceID string) (Preferences, error) {
	prefs := Defaults()

	values, err := s.client.HGetAll(ctx, key(deviceID)).Result()
	if err != nil {
		return prefs, fmt.Errorf("load preferences: %w", err)
	}

	// unreadable values fall back to their defaults
	if lang := domain.Language(values[fieldLanguage]); lang.Valid() {
		prefs.Language = lang
	}
	if raw, ok := values[fieldCurrentTenantID]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			prefs.CurrentTenantID = &id
		}
	}
	if raw, ok := values[fieldBusinessContext]; ok {
		var bc domain.BusinessContext
		if err := json.Unmarshal([]byte(raw), &bc); err == nil {
			prefs.BusinessContext = bc
		}
	}
	if mode := domain.AccessMode(values[fieldAccessMode]); mode.Valid() {
		prefs.AccessMode = mode
	}
	prefs.DemoEmail = values[fieldDemoEmail]

	return prefs, nil
}

func (s *RedisStore) SetLanguage(ctx context.Context, deviceID string, lang domain.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	return s.write(ctx, deviceID, map[string]any{fieldLanguage: string(lang)})
}

func (s *RedisStore) SetBusinessContext(ctx context.Context, deviceID string, bc domain.BusinessContext) error {
	raw, err := json.Marshal(bc)
	if err != nil {
		return fmt.Errorf("encode business context: %w", err)
	}
	return s.write(ctx, deviceID, map[string]any{fieldBusinessContext: string(raw)})
}

// SetCurrentTenant stores the selected tenant; nil clears it.
func (s *RedisStore) SetCurrentTenant(ctx context.Context, deviceID string, tenantID *uuid.UUID) error {
	if tenantID == nil {
		return s.remove(ctx, deviceID, fieldCurrentTenantID)
	}
	return s.write(ctx, deviceID, map[string]any{fieldCurrentTenantID: tenantID.String()})
}

// SetAccessMode stores the mode. The demo email is kept only in demo mode.
func (s *RedisStore) SetAccessMode(ctx context.Context, deviceID string, mode domain.AccessMode, demoEmail string) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccessMode, mode)
	}
	if mode != domain.AccessModeDemo {
		if err := s.remove(ctx, deviceID, fieldDemoEmail); err != nil {
			return err
		}
		return s.write(ctx, deviceID, map[string]any{fieldAccessMode: string(mode)})
	}
	return s.write(ctx, deviceID, map[string]any{
		fieldAccessMode: string(mode),
		fieldDemoEmail:  demoEmail,
	})
}

func (s *RedisStore) write(ctx context.Context, deviceID string, fields map[string]any) error {
	k := key(deviceID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fields)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *RedisStore) remove(ctx context.Context, deviceID string, fields ...string) error {
	if err := s.client.HDel(ctx, key(deviceID), fields...).Err(); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
