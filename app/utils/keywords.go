package utils

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	keywordSeparators = regexp.MustCompile(`[-_\s、，,&]+`)
	pureDigits        = regexp.MustCompile(`^\d+$`)
	imageExtWord      = regexp.MustCompile(`^(?i)(jpg|jpeg|png|webp|gif)$`)
)

// ExtractKeywordsFromFilename 从文件名提取关键词
// 作为没有 AI 元数据时清单文档的确定性回退方案
func ExtractKeywordsFromFilename(filename string) []string {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	// NFKC 归一化，统一全角/半角与兼容字符
	base = norm.NFKC.String(base)

	parts := keywordSeparators.Split(base, -1)
	seen := make(map[string]struct{}, len(parts))
	keywords := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || len([]rune(p)) >= 20 {
			continue
		}
		if pureDigits.MatchString(p) || imageExtWord.MatchString(p) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		keywords = append(keywords, p)
	}

	return keywords
}
