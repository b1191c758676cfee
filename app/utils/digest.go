package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex 计算字节内容的 SHA-256 摘要（十六进制小写）
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
