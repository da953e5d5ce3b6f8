package linkguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sswl/panpub/internal/models"
)

func TestVerifyReappendsMissingLinks(t *testing.T) {
	res := models.Resource{
		Title: "测试资源",
		Files: []string{
			"https://pan.quark.cn/s/abc123",
			"https://pan.quark.cn/s/def456",
		},
	}
	content := &models.SynthesizedContent{
		Body: "正文只保留了 https://pan.quark.cn/s/abc123 这一个链接。",
	}

	out := New().Verify(res, content)
	for _, url := range res.Files {
		assert.Contains(t, out.Body, url)
	}
	assert.Contains(t, out.Body, "## 📁 网盘资源")
	// Input content is not mutated.
	assert.NotContains(t, content.Body, "def456")
}

func TestVerifyNoopWhenLinksPresent(t *testing.T) {
	res := models.Resource{
		Title: "x",
		Files: []string{"https://pan.quark.cn/s/abc123"},
	}
	content := &models.SynthesizedContent{
		Body: "链接在这里：https://pan.quark.cn/s/abc123",
	}

	out := New().Verify(res, content)
	assert.Equal(t, content.Body, out.Body)
	assert.Equal(t, 1, strings.Count(out.Body, "abc123"))
}

func TestStripScaffolding(t *testing.T) {
	body := "```markdown\n# 标题\n\n🔍 SEO关键词引导段\n\n✅ 适合收藏\n\n正文内容。\n\n────────────────\n\n****\n```"
	out := New().StripScaffolding(body)

	assert.NotContains(t, out, "SEO关键词引导段")
	assert.NotContains(t, out, "适合收藏")
	assert.NotContains(t, out, "────────")
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, "正文内容。")
	assert.NotContains(t, out, "\n\n\n")
}

func TestStripScaffoldingKeepsLinks(t *testing.T) {
	body := "🔍 SEO关键词引导段\nhttps://pan.quark.cn/s/abc123"
	out := New().StripScaffolding(body)
	assert.Contains(t, out, "https://pan.quark.cn/s/abc123")
}

func TestAudit(t *testing.T) {
	posts := []models.Post{
		{Title: "有链接", MarkdownContent: "去 https://pan.quark.cn/s/ok1 下载"},
		{Title: "没链接", MarkdownContent: "链接被吃掉了"},
		{Title: "百度盘", MarkdownContent: "https://pan.baidu.com/s/xyz-9"},
	}

	missing := Audit(posts)
	assert.Len(t, missing, 1)
	assert.Equal(t, "没链接", missing[0].Title)
}
