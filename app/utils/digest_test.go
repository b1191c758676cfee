package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSha256Hex(t *testing.T) {
	// 标准测试向量
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Sha256Hex([]byte("abc")))
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Sha256Hex(nil))

	// 同内容不同名字必须得到相同摘要，去重依赖这一点
	assert.Equal(t, Sha256Hex([]byte("same-bytes")), Sha256Hex([]byte("same-bytes")))
	assert.NotEqual(t, Sha256Hex([]byte("a")), Sha256Hex([]byte("b")))
}
