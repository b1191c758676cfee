package aiclient

import (
	"fmt"
	"strings"
)

// 各系列的候选二级分类
var seriesCategories = map[string][]string{
	"desktop": {"风景", "动漫", "游戏", "影视", "简约", "科技", "通用"},
	"mobile":  {"风景", "动漫", "人物", "简约", "通用"},
	"avatar":  {"动漫", "人物", "动物", "简约", "通用"},
}

// buildPrompt 构造图片分类提示词
func buildPrompt(series string) string {
	categories, ok := seriesCategories[series]
	if !ok {
		categories = seriesCategories["desktop"]
	}

	return fmt.Sprintf(`你是一个壁纸图床的图片分类助手。请分析这张图片并以 JSON 格式返回结果，不要输出任何其他内容。

可选的二级分类: %s

返回格式:
{
  "secondary": "二级分类（必须从可选分类中选择）",
  "third": "三级分类（可为空字符串）",
  "keywords": ["3到6个中文关键词"],
  "description": "一句话描述图片内容",
  "filename": "建议的英文文件名（小写，连字符分隔，不含扩展名）",
  "confidence": 0.9,
  "reasoning": "简短的分类依据"
}`, strings.Join(categories, "、"))
}
