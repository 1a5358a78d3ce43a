package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"nuvaru-go/internal/model"
)

// 会话历史在 Redis 中的保留上限与过期时间。
const (
	historyMaxMessages = 20
	historyTTL         = 7 * 24 * time.Hour
)

// ConversationRepository 定义了会话历史记录的操作接口。
// 历史按 session_id 维度存储，仅保留最近 historyMaxMessages 条。
type ConversationRepository interface {
	GetOrCreateSessionID(ctx context.Context, userID uint) (string, error)
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	AppendHistory(ctx context.Context, sessionID string, messages ...model.ChatMessage) error
	ClearHistory(ctx context.Context, sessionID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

// GetOrCreateSessionID 获取用户当前会话 ID，不存在时生成新的 UUID 会话。
func (r *redisConversationRepository) GetOrCreateSessionID(ctx context.Context, userID uint) (string, error) {
	userKey := fmt.Sprintf("user:%d:current_session", userID)
	sessionID, err := r.redisClient.Get(ctx, userKey).Result()
	if err == redis.Nil {
		sessionID = uuid.NewString()
		if err := r.redisClient.Set(ctx, userKey, sessionID, historyTTL).Err(); err != nil {
			return "", fmt.Errorf("failed to set session id: %w", err)
		}
		return sessionID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session id: %w", err)
	}
	return sessionID, nil
}

// GetHistory 从 Redis 获取会话历史记录，会话不存在时返回空列表。
func (r *redisConversationRepository) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	key := fmt.Sprintf("session:%s:history", sessionID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	return messages, nil
}

// AppendHistory 追加消息到会话历史并裁剪到最近 historyMaxMessages 条。
func (r *redisConversationRepository) AppendHistory(ctx context.Context, sessionID string, messages ...model.ChatMessage) error {
	existing, err := r.GetHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	combined := append(existing, messages...)
	if len(combined) > historyMaxMessages {
		combined = combined[len(combined)-historyMaxMessages:]
	}

	jsonData, err := json.Marshal(combined)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}
	key := fmt.Sprintf("session:%s:history", sessionID)
	if err := r.redisClient.Set(ctx, key, jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session history: %w", err)
	}
	return nil
}

// ClearHistory 清空一个会话的历史记录。
func (r *redisConversationRepository) ClearHistory(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf("session:%s:history", sessionID)
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear session history: %w", err)
	}
	return nil
}
