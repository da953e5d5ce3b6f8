// Package linkguard enforces the pipeline's core invariant independently of
// content synthesis: every netdisk URL from the source resource survives into
// the published markdown. Synthesis embeds links itself, but a regression
// there must not be able to silently strip required payload, so this stage
// re-checks and repairs.
package linkguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
)

// NetdiskLinkPattern matches the share links this site publishes. Used by the
// audit maintenance operation to find posts that lost their links.
var NetdiskLinkPattern = regexp.MustCompile(`https?://pan\.[a-z0-9.]+/s/[A-Za-z0-9_-]+`)

// Provider scaffolding that occasionally leaks into generated output and is
// never meant for publication.
var scaffoldingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\*{0,2}🔍?\s*SEO关键词引导段\*{0,2}\s*$`),
	regexp.MustCompile(`(?m)^\*{0,2}🧠\s*为什么值得看？\*{0,2}\s*$`),
	regexp.MustCompile(`(?m)^\*{0,2}🎯\s*适合哪些人看？\*{0,2}\s*$`),
	regexp.MustCompile(`(?m)^✅.*$`),
	regexp.MustCompile("(?m)^```(?:json|markdown)?\\s*$"),
	regexp.MustCompile(`─{8,}`),
	regexp.MustCompile(`\*{3,}`),
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Guard verifies and repairs synthesized content.
type Guard struct{}

func New() *Guard { return &Guard{} }

// Verify returns the content with every resource link guaranteed present and
// known scaffolding stripped. Missing links are a warning, never a failure.
func (g *Guard) Verify(res models.Resource, content *models.SynthesizedContent) *models.SynthesizedContent {
	body := g.StripScaffolding(content.Body)

	var missing []string
	for _, url := range res.Files {
		if !strings.Contains(body, url) {
			missing = append(missing, url)
		}
	}

	if len(missing) > 0 {
		logger.Get().Warn().
			Str("title", res.Title).
			Strs("missing_links", missing).
			Msg("Resource links missing after synthesis, re-appending")

		var b strings.Builder
		b.WriteString(body)
		b.WriteString("\n\n## 📁 网盘资源\n\n")
		for i, url := range missing {
			fmt.Fprintf(&b, "- [资源链接 %d](%s)\n", i+1, url)
		}
		body = b.String()
	}

	out := *content
	out.Body = body
	return &out
}

// StripScaffolding removes leftover provider boilerplate and collapses the
// blank-line runs the removal leaves behind.
func (g *Guard) StripScaffolding(body string) string {
	for _, re := range scaffoldingPatterns {
		body = re.ReplaceAllString(body, "")
	}
	body = blankRuns.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// Audit reports which of the given posts lack any netdisk link. Read-only
// maintenance check, mirrors what the pipeline guarantees for new posts.
func Audit(posts []models.Post) []models.Post {
	var missing []models.Post
	for _, p := range posts {
		if !NetdiskLinkPattern.MatchString(p.MarkdownContent) {
			missing = append(missing, p)
		}
	}
	return missing
}
