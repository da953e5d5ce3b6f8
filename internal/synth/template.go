package synth

import (
	"context"
	"fmt"

	"github.com/sswl/panpub/internal/models"
)

// TemplateProvider is the offline fallback at the end of the chain. It never
// fails and needs no credentials; the output is a category-specific template
// around the resource's own metadata.
type TemplateProvider struct{}

func NewTemplateProvider() *TemplateProvider { return &TemplateProvider{} }

func (t *TemplateProvider) Name() string { return "template" }

type categoryTemplate struct {
	features    string
	usage       string
	imagePrompt string
}

var categoryTemplates = map[string]categoryTemplate{
	"电影": {
		features: `## 🎬 资源特色

- 精心挑选的优质内容
- 高清画质，观影体验佳
- 多种格式，设备兼容性好
- 更新及时，内容丰富`,
		usage:       "本资源仅供个人学习和交流使用，请支持正版内容。",
		imagePrompt: "cinema abstract art, film reels, dark blue theme",
	},
	"软件": {
		features: `## 🛠️ 工具特点

- 功能实用，操作简便
- 兼容性好，稳定可靠
- 定期测试，确保可用
- 持续更新，功能完善`,
		usage:       "请从官方渠道下载并验证软件完整性和安全性。",
		imagePrompt: "software icons abstract, technology theme, modern design",
	},
	"教育": {
		features: `## 📚 资源亮点

- 内容丰富，覆盖面广
- 结构清晰，易于学习
- 持续更新，保持新鲜
- 适合自学和提升`,
		usage:       "建议制定合理的学习计划，循序渐进地掌握知识。",
		imagePrompt: "education abstract art, books and light, warm colors",
	},
}

const disclaimer = `## ⚠️ 免责声明

本站仅提供资源信息分享，不存储任何文件。所有资源均来源于网络公开分享，如有版权问题，请联系删除。

**请支持正版，尊重版权！**`

func (t *TemplateProvider) Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
	tmpl, ok := categoryTemplates[res.Category]
	if !ok {
		tmpl = categoryTemplates["软件"]
	}

	body := fmt.Sprintf("# %s\n\n%s\n\n%s\n\n## 📋 使用说明\n\n%s\n\n%s",
		res.Title, res.Description, tmpl.features, tmpl.usage, disclaimer)

	tags := res.Tags
	if len(tags) == 0 {
		tags = []string{"资源", "分享"}
	}

	return &models.SynthesizedContent{
		Title:       res.Title,
		Excerpt:     res.Description,
		Body:        body,
		Tags:        tags,
		ImagePrompt: tmpl.imagePrompt,
	}, nil
}
