package synth

import (
	"fmt"
	"strings"

	"github.com/sswl/panpub/internal/models"
)

const resourcePromptTemplate = `你是一位资深中文博客编辑。请为以下网盘资源生成一篇博客文章：

资源信息：
- 标题：%s
- 分类：%s
- 类型：%s
- 标签：%s
- 描述：%s

要求：
1. 标题要吸引人且通用化，避免具体作品名称带来的版权风险
2. 内容包含资源介绍、特色亮点和使用说明
3. 文末添加免责声明
4. 正文使用Markdown格式
5. 生成一个抽象、无版权风险的配图提示词

请按JSON格式返回：
{
  "title": "文章标题",
  "excerpt": "文章摘要",
  "content": "文章正文(markdown格式)",
  "tags": ["标签1", "标签2"],
  "imagePrompt": "配图提示词(英文)"
}

只返回JSON，不要包含其他说明文字。`

// BuildResourcePrompt renders the shared generation prompt for a resource.
// File links are deliberately not included: the synthesizer embeds them
// deterministically after generation.
func BuildResourcePrompt(res models.Resource) string {
	return fmt.Sprintf(resourcePromptTemplate,
		escapeForPrompt(res.Title),
		escapeForPrompt(res.Category),
		escapeForPrompt(res.Type),
		escapeForPrompt(strings.Join(res.Tags, ", ")),
		escapeForPrompt(res.Description))
}

func escapeForPrompt(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}
