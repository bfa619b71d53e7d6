package codegen

import (
	"regexp"
	"strings"

	"codemother/internal/models"
)

var (
	htmlBlock = regexp.MustCompile("(?is)```html\\s*\\n(.*?)```")
	cssBlock  = regexp.MustCompile("(?is)```css\\s*\\n(.*?)```")
	jsBlock   = regexp.MustCompile("(?is)```(?:javascript|js)\\s*\\n(.*?)```")
)

// Parser turns a raw model reply into a CodeResult.
type Parser interface {
	Parse(raw string) CodeResult
}

type htmlParser struct{}

// Parse takes the first html block, or the whole reply when the model sent bare markup.
func (htmlParser) Parse(raw string) CodeResult {
	if code, ok := firstBlock(htmlBlock, raw); ok {
		return &HTMLCodeResult{HTML: code}
	}
	return &HTMLCodeResult{HTML: strings.TrimSpace(raw)}
}

type multiFileParser struct{}

func (multiFileParser) Parse(raw string) CodeResult {
	html, _ := firstBlock(htmlBlock, raw)
	css, _ := firstBlock(cssBlock, raw)
	js, _ := firstBlock(jsBlock, raw)
	return &MultiFileCodeResult{HTML: html, CSS: css, JS: js}
}

var parsers = map[models.GenerationType]Parser{
	models.GenerationHTML:      htmlParser{},
	models.GenerationMultiFile: multiFileParser{},
}

// Parse selects the parser for t. Tool-driven types have no parser.
func Parse(t models.GenerationType, raw string) (CodeResult, error) {
	p, ok := parsers[t]
	if !ok {
		return nil, models.UnsupportedType(t)
	}
	return p.Parse(raw), nil
}

func firstBlock(re *regexp.Regexp, raw string) (string, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
