package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nuvaru-go/internal/config"
	"nuvaru-go/internal/model"
	"nuvaru-go/internal/repository"
	"nuvaru-go/pkg/llm"
	"nuvaru-go/pkg/log"
)

// 流式问答的检索条数，高于普通问答以提升覆盖度。
const streamTopK = 10

// ChatService 定义了流式问答操作的接口。
type ChatService interface {
	StreamResponse(ctx context.Context, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	searchService    SearchService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	assembler        *ContextAssembler
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(searchService SearchService, llmClient llm.Client, conversationRepo repository.ConversationRepository, ragCfg config.RAGConfig) ChatService {
	return &chatService{
		searchService:    searchService,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		assembler:        NewContextAssembler(ragCfg.MaxContextLength),
	}
}

// StreamResponse 编排 RAG 流程并流式传输 LLM 响应。
func (s *chatService) StreamResponse(ctx context.Context, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 检索上下文
	results, err := s.searchService.Search(ctx, user.ID, "", query, streamTopK)
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 2. 构建 system 消息与历史
	contextText := ""
	if len(results) > 0 {
		contextText = s.assembler.BuildContext(results)
	}
	systemMsg := s.buildSystemMessage(contextText)

	sessionID, err := s.conversationRepo.GetOrCreateSessionID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve session: %w", err)
	}
	history, err := s.conversationRepo.GetHistory(ctx, sessionID)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		history = []model.ChatMessage{}
	}
	messages := composeMessages(systemMsg, history, query)

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	// 3. 调用 LLM 客户端以流式传输响应（带生成参数）
	gen := buildGenerationParams()
	llmMsgs := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if err := s.llmClient.StreamChatMessages(ctx, llmMsgs, gen, interceptor); err != nil {
		return err
	}

	// 4. 发送完成通知，并将对话保存到 Redis
	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，因为即使原始请求被取消，我们也希望保存成功生成的答案
		now := time.Now()
		err = s.conversationRepo.AppendHistory(context.Background(), sessionID,
			model.ChatMessage{Role: "user", Content: query, Timestamp: now},
			model.ChatMessage{Role: "assistant", Content: fullAnswer, Timestamp: now},
		)
		if err != nil {
			// 只记录错误，不返回给客户端，因为流式响应已经成功
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}

	return nil
}

// buildSystemMessage 把系统提示与检索上下文拼成 system 消息。
func (s *chatService) buildSystemMessage(contextText string) string {
	systemPrompt := config.Conf.LLM.Prompt.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultStreamSystemPrompt
	}

	var sys strings.Builder
	sys.WriteString(systemPrompt)
	sys.WriteString("\n\nContext Documents:\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := config.Conf.LLM.Prompt.NoResultText
		if noRes == "" {
			noRes = noResultContext
		}
		sys.WriteString(noRes)
	}
	return sys.String()
}

const defaultStreamSystemPrompt = `You are a helpful AI assistant for the Nuvaru Domain-Centric Learning Platform.
Your role is to provide accurate, helpful responses based on the provided context documents.

Guidelines:
1. Use only the information provided in the context documents
2. If the context doesn't contain relevant information, say so clearly
3. Cite specific sources when possible
4. Provide accurate, factual responses
5. Be helpful and professional
6. If asked about topics not covered in the context, explain the limitations`

func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

func buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if config.Conf.LLM.Generation.Temperature != 0 {
		t := config.Conf.LLM.Generation.Temperature
		gp.Temperature = &t
	}
	if config.Conf.LLM.Generation.TopP != 0 {
		p := config.Conf.LLM.Generation.TopP
		gp.TopP = &p
	}
	if config.Conf.LLM.Generation.MaxTokens != 0 {
		m := config.Conf.LLM.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
