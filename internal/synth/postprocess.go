package synth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sswl/panpub/internal/models"
)

// PostProcessor validates and cleans provider output before it goes anywhere
// near the store.
type PostProcessor struct {
	maxTags       int
	excerptLength int
}

func NewPostProcessor(maxTags, excerptLength int) *PostProcessor {
	if maxTags <= 0 {
		maxTags = 8
	}
	if excerptLength <= 0 {
		excerptLength = 200
	}
	return &PostProcessor{
		maxTags:       maxTags,
		excerptLength: excerptLength,
	}
}

var (
	controlChars  = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	scriptBlocks  = regexp.MustCompile(`<script[^>]*>[\s\S]*?<\/script>`)
	dangerousTags = []string{"<script", "<iframe", "<object", "<embed"}
)

// Process normalizes the generated content in place, falling back to the
// resource's own metadata for anything the provider left blank.
func (p *PostProcessor) Process(content *models.SynthesizedContent, res models.Resource) {
	content.Title = cleanText(content.Title)
	if content.Title == "" {
		content.Title = res.Title
	}

	content.Body = cleanMarkdown(content.Body)

	excerpt := cleanText(content.Excerpt)
	if excerpt == "" {
		excerpt = cleanText(res.Description)
	}
	content.Excerpt = TruncateExcerpt(excerpt, p.excerptLength)

	tags := content.Tags
	if len(tags) == 0 {
		tags = res.Tags
	}
	content.Tags = dedupeTags(tags, p.maxTags)

	if content.ImagePrompt == "" {
		content.ImagePrompt = "abstract digital art, blue and purple gradient"
	}
}

// cleanText removes control characters and normalizes whitespace
func cleanText(s string) string {
	s = controlChars.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// cleanMarkdown strips unsafe HTML and normalizes line endings
func cleanMarkdown(content string) string {
	content = scriptBlocks.ReplaceAllString(content, "")
	for _, tag := range dangerousTags {
		re := regexp.MustCompile(fmt.Sprintf(`%s[^>]*>`, tag))
		content = re.ReplaceAllString(content, "")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.TrimSpace(content)
}

var sentenceEnd = map[rune]bool{
	'。': true, '!': true, '！': true, '?': true, '？': true, '.': true,
}

// TruncateExcerpt caps the excerpt at maxRunes runes, preferring a sentence
// boundary and never cutting mid-rune.
func TruncateExcerpt(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	cut := runes[:maxRunes]

	// Prefer the last sentence boundary in the back half of the window.
	for i := len(cut) - 1; i >= maxRunes/2; i-- {
		if sentenceEnd[cut[i]] {
			return string(cut[:i+1])
		}
	}

	// Otherwise break at the last space to avoid a mid-word cut.
	for i := len(cut) - 1; i >= maxRunes/2; i-- {
		if cut[i] == ' ' {
			return string(cut[:i]) + "..."
		}
	}

	return string(cut) + "..."
}

// dedupeTags keeps first occurrence order and caps the count.
func dedupeTags(tags []string, max int) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == max {
			break
		}
	}
	if out == nil {
		out = []string{"资源", "分享"}
	}
	return out
}
