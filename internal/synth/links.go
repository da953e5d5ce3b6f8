package synth

import (
	"fmt"
	"strings"
)

// LinkSectionHeader delimits the appended resource-link section. The link
// guard recognizes the same header when it repairs stripped links.
const LinkSectionHeader = "## 📁 网盘资源"

// EmbedLinks guarantees every file URL appears verbatim in the markdown body.
// Generative rewriting is known to drop links; any URL missing from the
// provider output is appended in a delimited section instead of discarding
// the resource.
func EmbedLinks(body string, files []string) string {
	var missing []string
	for _, url := range files {
		if !strings.Contains(body, url) {
			missing = append(missing, url)
		}
	}
	if len(missing) == 0 {
		return body
	}
	return body + RenderLinkSection(missing)
}

// RenderLinkSection formats file URLs as a markdown section.
func RenderLinkSection(files []string) string {
	var b strings.Builder
	b.WriteString("\n\n" + LinkSectionHeader + "\n\n")
	for i, url := range files {
		fmt.Fprintf(&b, "- [资源链接 %d](%s)\n", i+1, url)
	}
	return b.String()
}
