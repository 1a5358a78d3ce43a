package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuvaru-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func issueStopToken(t *testing.T, h *ChatHandler) string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/chat/websocket-token", nil)

	h.GetWebsocketStopToken(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			CmdToken string `json:"cmdToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Code)
	assert.Equal(t, "success", body.Message)
	return body.Data.CmdToken
}

// 停止令牌签发后保存在同一个 handler 实例上，供 WebSocket 侧校验；
// 每次签发轮换令牌。
func TestGetWebsocketStopTokenHeldByInstance(t *testing.T) {
	h := NewChatHandler(nil, nil, nil)

	first := issueStopToken(t, h)
	assert.True(t, strings.HasPrefix(first, "WSS_STOP_CMD_"))
	assert.Equal(t, first, h.stopToken)

	second := issueStopToken(t, h)
	assert.Equal(t, second, h.stopToken)
	assert.NotEqual(t, first, second)
}
