package service

import (
	"context"

	"nuvaru-go/internal/model"
	"nuvaru-go/internal/repository"
)

// ConversationService 定义了会话历史业务逻辑的接口。
type ConversationService interface {
	GetHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	ClearHistory(ctx context.Context, userID uint) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetHistory 获取用户当前会话的完整消息历史。
func (s *conversationService) GetHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	sessionID, err := s.repo.GetOrCreateSessionID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetHistory(ctx, sessionID)
}

// ClearHistory 清空用户当前会话的历史。
func (s *conversationService) ClearHistory(ctx context.Context, userID uint) error {
	sessionID, err := s.repo.GetOrCreateSessionID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.ClearHistory(ctx, sessionID)
}
