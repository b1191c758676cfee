package aiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelOutput(t *testing.T) {
	result, err := parseModelOutput(`{"secondary":"风景","third":"雪山","keywords":["雪山","湖泊"],"confidence":0.92}`)
	require.NoError(t, err)
	assert.Equal(t, "风景", result.Secondary)
	assert.Equal(t, "雪山", result.Third)
	assert.Equal(t, []string{"雪山", "湖泊"}, result.Keywords)
	assert.InDelta(t, 0.92, result.Confidence, 0.001)
}

func TestParseModelOutputStripsCodeFence(t *testing.T) {
	text := "好的，以下是分析结果：\n```json\n{\"secondary\":\"动漫\",\"confidence\":0.8}\n```\n希望对你有帮助。"
	result, err := parseModelOutput(text)
	require.NoError(t, err)
	assert.Equal(t, "动漫", result.Secondary)
}

func TestParseModelOutputDefaultsSecondary(t *testing.T) {
	result, err := parseModelOutput(`{"keywords":["夜景"]}`)
	require.NoError(t, err)
	assert.Equal(t, "通用", result.Secondary)
}

func TestParseModelOutputInvalid(t *testing.T) {
	_, err := parseModelOutput("模型没有返回任何结构化内容")
	assert.Error(t, err)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("unknown", nil, nil)
	assert.Error(t, err)
}
