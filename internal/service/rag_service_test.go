package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuvaru-go/internal/config"
	"nuvaru-go/internal/model"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/llm"
	"nuvaru-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// fakeSearchService 返回预设的检索结果。
type fakeSearchService struct {
	results []model.QueryResult
	err     error
	gotTopK int
}

func (f *fakeSearchService) Search(_ context.Context, _ uint, _ string, _ string, topK int) ([]model.QueryResult, error) {
	f.gotTopK = topK
	return f.results, f.err
}

// fakeLLM 返回预设的生成结果并记录收到的上下文。
type fakeLLM struct {
	result          *llm.GenerateResult
	err             error
	calls           int
	gotContext      string
	gotConversation string
}

func (f *fakeLLM) Generate(_ context.Context, _ string, contextText, conversationContext string) (*llm.GenerateResult, error) {
	f.calls++
	f.gotContext = contextText
	f.gotConversation = conversationContext
	return f.result, f.err
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, _ []llm.Message, _ *llm.GenerationParams, _ llm.MessageWriter) error {
	return f.err
}

func (f *fakeLLM) Provider() string { return "fake" }

// fakeConversationRepo 把会话历史保存在内存中。
type fakeConversationRepo struct {
	sessions map[uint]string
	history  map[string][]model.ChatMessage
	err      error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		sessions: map[uint]string{},
		history:  map[string][]model.ChatMessage{},
	}
}

func (f *fakeConversationRepo) GetOrCreateSessionID(_ context.Context, userID uint) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if s, ok := f.sessions[userID]; ok {
		return s, nil
	}
	s := fmt.Sprintf("session-%d", userID)
	f.sessions[userID] = s
	return s, nil
}

func (f *fakeConversationRepo) GetHistory(_ context.Context, sessionID string) ([]model.ChatMessage, error) {
	return f.history[sessionID], nil
}

func (f *fakeConversationRepo) AppendHistory(_ context.Context, sessionID string, messages ...model.ChatMessage) error {
	f.history[sessionID] = append(f.history[sessionID], messages...)
	return nil
}

func (f *fakeConversationRepo) ClearHistory(_ context.Context, sessionID string) error {
	delete(f.history, sessionID)
	return nil
}

func newTestRagService(search SearchService, client llm.Client, repo *fakeConversationRepo) RagService {
	return NewRagService(search, client, repo, config.RAGConfig{
		TopK:             5,
		MaxContextLength: 4096,
	})
}

func TestChatEmptyMessage(t *testing.T) {
	svc := newTestRagService(&fakeSearchService{}, &fakeLLM{}, newFakeConversationRepo())

	_, err := svc.Chat(context.Background(), ChatRequest{UserID: 1, Message: ""})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestChatSuccess(t *testing.T) {
	results := []model.QueryResult{
		{Text: "糖尿病患者应规律监测血糖。", Similarity: 0.91, Metadata: map[string]string{"doc_id": "doc-1", "file_name": "diabetes.md"}},
		{Text: "二甲双胍是二型糖尿病的一线用药。", Similarity: 0.85, Metadata: map[string]string{"doc_id": "doc-2"}},
	}
	search := &fakeSearchService{results: results}
	client := &fakeLLM{result: &llm.GenerateResult{Text: "answer", Provider: "openai", Model: "gpt-4"}}
	repo := newFakeConversationRepo()
	svc := newTestRagService(search, client, repo)

	resp, err := svc.Chat(context.Background(), ChatRequest{UserID: 7, Message: "糖尿病怎么管理？", SessionID: "s-1"})
	require.NoError(t, err)

	assert.Equal(t, "answer", resp.Response)
	assert.Equal(t, "s-1", resp.SessionID)
	assert.Len(t, resp.Sources, 2)
	assert.Equal(t, "doc-1", resp.Sources[0].DocumentID)
	assert.Equal(t, 2, resp.Metadata.SourcesCount)
	assert.Equal(t, "openai", resp.Metadata.Provider)
	assert.Equal(t, "gpt-4", resp.Metadata.Model)
	assert.Equal(t, uint(7), resp.Metadata.UserID)
	// 上下文长度对应拼装后的文本
	assembler := NewContextAssembler(4096)
	assert.Equal(t, len(assembler.BuildContext(results)), resp.Metadata.ContextLength)
	// 检索使用配置的 TopK
	assert.Equal(t, 5, search.gotTopK)
	// 新会话没有历史可注入
	assert.Equal(t, "", client.gotConversation)
	// 历史记录了用户消息与回答
	require.Len(t, repo.history["s-1"], 2)
	assert.Equal(t, "user", repo.history["s-1"][0].Role)
	assert.Equal(t, "糖尿病怎么管理？", repo.history["s-1"][0].Content)
	assert.Equal(t, "assistant", repo.history["s-1"][1].Role)
	assert.Equal(t, "answer", repo.history["s-1"][1].Content)
}

func TestChatFallsBackToDemoOnGenerationError(t *testing.T) {
	client := &fakeLLM{err: fmt.Errorf("%w: upstream 503", apperr.ErrGeneration)}
	svc := newTestRagService(&fakeSearchService{}, client, newFakeConversationRepo())

	resp, err := svc.Chat(context.Background(), ChatRequest{UserID: 1, Message: "hello", SessionID: "s-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "demo", resp.Metadata.Provider)
	assert.Equal(t, "demo-mode", resp.Metadata.Model)
	assert.NotEmpty(t, resp.Response)
}

func TestChatNonGenerationErrorPropagates(t *testing.T) {
	client := &fakeLLM{err: fmt.Errorf("%w: 请求超时", apperr.ErrTimeout)}
	svc := newTestRagService(&fakeSearchService{}, client, newFakeConversationRepo())

	_, err := svc.Chat(context.Background(), ChatRequest{UserID: 1, Message: "hello", SessionID: "s-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.False(t, errors.Is(err, apperr.ErrGeneration))
}

func TestChatSearchErrorPropagates(t *testing.T) {
	search := &fakeSearchService{err: fmt.Errorf("%w: embedding 服务不可用", apperr.ErrEmbedding)}
	client := &fakeLLM{result: &llm.GenerateResult{Text: "unused"}}
	svc := newTestRagService(search, client, newFakeConversationRepo())

	_, err := svc.Chat(context.Background(), ChatRequest{UserID: 1, Message: "hello", SessionID: "s-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrEmbedding)
	assert.Equal(t, 0, client.calls)
}

func TestChatCreatesAndReusesSession(t *testing.T) {
	client := &fakeLLM{result: &llm.GenerateResult{Text: "a", Provider: "openai", Model: "gpt-4"}}
	repo := newFakeConversationRepo()
	svc := newTestRagService(&fakeSearchService{}, client, repo)

	first, err := svc.Chat(context.Background(), ChatRequest{UserID: 3, Message: "q1"})
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)

	second, err := svc.Chat(context.Background(), ChatRequest{UserID: 3, Message: "q2"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Len(t, repo.history[first.SessionID], 4)
}

// 同一会话的后续提问把此前的对话注入生成调用。
func TestChatInjectsHistoryIntoGeneration(t *testing.T) {
	client := &fakeLLM{result: &llm.GenerateResult{Text: "a1", Provider: "openai", Model: "gpt-4"}}
	repo := newFakeConversationRepo()
	svc := newTestRagService(&fakeSearchService{}, client, repo)
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatRequest{UserID: 1, Message: "q1", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "", client.gotConversation)

	client.result = &llm.GenerateResult{Text: "a2", Provider: "openai", Model: "gpt-4"}
	_, err = svc.Chat(ctx, ChatRequest{UserID: 1, Message: "q2", SessionID: "s-1"})
	require.NoError(t, err)

	assert.Contains(t, client.gotConversation, "user: q1")
	assert.Contains(t, client.gotConversation, "assistant: a1")
}

// 历史很长时只注入最近的几条消息。
func TestChatHistoryInjectionIsBounded(t *testing.T) {
	client := &fakeLLM{result: &llm.GenerateResult{Text: "a", Provider: "openai", Model: "gpt-4"}}
	repo := newFakeConversationRepo()
	for i := 0; i < 5; i++ {
		repo.history["s-1"] = append(repo.history["s-1"],
			model.ChatMessage{Role: "user", Content: fmt.Sprintf("q%d", i)},
			model.ChatMessage{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
		)
	}
	svc := newTestRagService(&fakeSearchService{}, client, repo)

	_, err := svc.Chat(context.Background(), ChatRequest{UserID: 1, Message: "latest", SessionID: "s-1"})
	require.NoError(t, err)

	assert.Contains(t, client.gotConversation, "user: q4")
	assert.Contains(t, client.gotConversation, "assistant: a2")
	assert.NotContains(t, client.gotConversation, "user: q0")
	assert.NotContains(t, client.gotConversation, "user: q1")
}

func TestFormatConversationContext(t *testing.T) {
	conversation := formatConversationContext([]model.ChatMessage{
		{Role: "user", Content: "什么是糖尿病？"},
		{Role: "assistant", Content: "糖尿病是一种慢性代谢疾病。"},
	})
	assert.Equal(t, "user: 什么是糖尿病？\nassistant: 糖尿病是一种慢性代谢疾病。", conversation)
}

func TestChatNoResultsSendsEmptyContextToModel(t *testing.T) {
	client := &fakeLLM{result: &llm.GenerateResult{Text: "a", Provider: "openai", Model: "gpt-4"}}
	svc := newTestRagService(&fakeSearchService{}, client, newFakeConversationRepo())

	resp, err := svc.Chat(context.Background(), ChatRequest{UserID: 1, Message: "hello", SessionID: "s-1"})
	require.NoError(t, err)

	// 生成侧不携带占位文本，响应元数据记录占位上下文的长度
	assert.Equal(t, "", client.gotContext)
	assert.Equal(t, 0, resp.Metadata.SourcesCount)
	assert.Equal(t, len("No relevant documents found."), resp.Metadata.ContextLength)
	assert.Empty(t, resp.Sources)
}
