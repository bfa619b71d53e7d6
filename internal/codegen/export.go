package codegen

import (
	"regexp"
	"strings"

	"codemother/internal/models"
)

var (
	exportBlock    = regexp.MustCompile("(?i)```(html|css|javascript)\\s*\\n((?s:.*?))```")
	unsafeFileName = regexp.MustCompile(`[\\/:*?"<>|]`)
	exportOrder    = []string{"html", "css", "javascript"}
)

// HasRequiredBlocks reports whether a reply carries every code block an export of t needs.
func HasRequiredBlocks(t models.GenerationType, reply string) bool {
	lower := strings.ToLower(reply)
	hasHTML := strings.Contains(lower, "```html")
	switch t {
	case models.GenerationHTML:
		return hasHTML
	case models.GenerationMultiFile:
		hasJS := strings.Contains(lower, "```javascript") || strings.Contains(lower, "```js")
		return hasHTML && strings.Contains(lower, "```css") && hasJS
	default:
		return false
	}
}

// ExtractBlocks returns the html, css and javascript blocks of a reply keyed by language.
// When a language repeats, the last block wins.
func ExtractBlocks(reply string) map[string]string {
	blocks := map[string]string{}
	for _, m := range exportBlock.FindAllStringSubmatch(reply, -1) {
		blocks[strings.ToLower(m[1])] = m[2]
	}
	return blocks
}

// ExportMarkdown renders the code blocks of a reply as a markdown document with one
// section per language. It returns "" when the reply has no exportable block.
func ExportMarkdown(reply string) string {
	blocks := ExtractBlocks(reply)
	var b strings.Builder
	for _, lang := range exportOrder {
		code, ok := blocks[lang]
		if !ok {
			continue
		}
		b.WriteString("## " + strings.ToUpper(lang) + "\n\n")
		b.WriteString("```" + lang + "\n")
		b.WriteString(code)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

// SanitizeFileName replaces characters that are not allowed in file names.
func SanitizeFileName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "export"
	}
	return unsafeFileName.ReplaceAllString(name, "_")
}
