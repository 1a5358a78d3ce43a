package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nuvaru-go/internal/config"
	"nuvaru-go/internal/model"
	"nuvaru-go/internal/repository"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/llm"
	"nuvaru-go/pkg/log"
)

// ChatRequest 封装一次问答请求的输入。
// SessionID 为空时复用（或新建）用户当前会话。
type ChatRequest struct {
	UserID          uint
	KnowledgeBaseID string
	Message         string
	SessionID       string
}

// RagService 接口定义了检索增强问答的编排操作。
type RagService interface {
	// Chat 执行完整的问答流程：检索、拼装上下文、生成回答、保存历史。
	// 会话的最近历史作为补充上下文注入生成提示词。
	// 生成失败时降级为 demo 回答（Provider 标记为 "demo"），检索或存储
	// 失败则原样返回错误。
	Chat(ctx context.Context, req ChatRequest) (*model.RagResponse, error)
}

type ragService struct {
	searchService    SearchService
	llmClient        llm.Client
	fallbackClient   llm.Client
	conversationRepo repository.ConversationRepository
	assembler        *ContextAssembler
	ragCfg           config.RAGConfig
}

// NewRagService 创建一个新的 RagService 实例。
func NewRagService(
	searchService SearchService,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	ragCfg config.RAGConfig,
) RagService {
	return &ragService{
		searchService:    searchService,
		llmClient:        llmClient,
		fallbackClient:   llm.NewDemoClient(),
		conversationRepo: conversationRepo,
		assembler:        NewContextAssembler(ragCfg.MaxContextLength),
		ragCfg:           ragCfg,
	}
}

// Chat 编排一次完整的问答。
func (s *ragService) Chat(ctx context.Context, req ChatRequest) (*model.RagResponse, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("%w: 问题内容为空", apperr.ErrValidation)
	}
	log.Infof("[RagService] 开始问答, user: %d, message: '%s'", req.UserID, req.Message)

	// 1. 会话 ID
	sessionID := req.SessionID
	if sessionID == "" {
		var err error
		sessionID, err = s.conversationRepo.GetOrCreateSessionID(ctx, req.UserID)
		if err != nil {
			log.Errorf("[RagService] 获取会话 ID 失败: %v", err)
			return nil, fmt.Errorf("%w: 获取会话失败: %v", apperr.ErrStorage, err)
		}
	}

	// 2. 读取会话历史，作为生成的补充上下文；读取失败只降级不报错
	history, err := s.conversationRepo.GetHistory(ctx, sessionID)
	if err != nil {
		log.Errorf("[RagService] 读取会话历史失败: %v", err)
		history = nil
	}
	conversationContext := formatConversationContext(history)

	// 3. 检索相关分块
	results, err := s.searchService.Search(ctx, req.UserID, req.KnowledgeBaseID, req.Message, s.ragCfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("检索相关文档失败: %w", err)
	}

	// 4. 拼装上下文
	contextText := s.assembler.BuildContext(results)
	genContext := contextText
	if len(results) == 0 {
		genContext = ""
	}

	// 5. 生成回答；仅生成类失败可降级，其余错误照常上抛
	result, err := s.llmClient.Generate(ctx, req.Message, genContext, conversationContext)
	if err != nil {
		if !errors.Is(err, apperr.ErrGeneration) {
			return nil, err
		}
		log.Errorf("[RagService] 生成回答失败，降级为 demo 模式: %v", err)
		result, err = s.fallbackClient.Generate(ctx, req.Message, genContext, conversationContext)
		if err != nil {
			return nil, err
		}
	}

	// 6. 组装响应
	response := &model.RagResponse{
		Response:  result.Text,
		Sources:   s.assembler.FormatSources(results),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Metadata: model.RagResponseMeta{
			UserID:          req.UserID,
			KnowledgeBaseID: req.KnowledgeBaseID,
			SourcesCount:    len(results),
			ContextLength:   len(contextText),
			Provider:        result.Provider,
			Model:           result.Model,
		},
	}

	// 7. 保存会话历史（使用后台上下文，请求取消不影响历史落盘）
	now := time.Now()
	if err := s.conversationRepo.AppendHistory(context.Background(), sessionID,
		model.ChatMessage{Role: "user", Content: req.Message, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: result.Text, Timestamp: now},
	); err != nil {
		// 只记录错误，不影响已生成的回答
		log.Errorf("[RagService] 保存会话历史失败: %v", err)
	}

	log.Infof("[RagService] 问答完毕, session: %s, sources: %d, provider: %s",
		sessionID, len(results), result.Provider)
	return response, nil
}

// 注入生成提示词的历史消息条数上限，避免挤占检索上下文的空间。
const historyContextMessages = 6

// formatConversationContext 把最近的会话历史格式化为 "role: content" 行。
func formatConversationContext(history []model.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > historyContextMessages {
		history = history[len(history)-historyContextMessages:]
	}
	parts := make([]string, 0, len(history))
	for _, m := range history {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(parts, "\n")
}
