package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/llm/client"
	"codemother/internal/logging"
	"codemother/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	filepathx "github.com/yargevad/filepathx"
)

const resultSchema = `{
  "type": "object",
  "required": ["isValid", "issues"],
  "properties": {
    "isValid": {"type": "boolean"},
    "issues": {"type": "array", "items": {"type": "string"}},
    "suggestions": {"type": "array", "items": {"type": "string"}}
  }
}`

// MaxSourceBytes caps how much project source is sent for review.
const MaxSourceBytes = 200_000

var (
	sourceExtensions = []string{"html", "css", "js", "ts", "vue", "json"}
	skippedDirs      = []string{"node_modules", "dist", ".git"}
	fencedJSON       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	schemaLoader     = gojsonschema.NewStringLoader(resultSchema)
)

// Checker asks a chat model to review generated sources.
type Checker struct {
	chat   model.BaseChatModel
	prompt string
	log    zerolog.Logger
}

func NewChecker(chat model.BaseChatModel) (*Checker, error) {
	if chat == nil {
		return nil, fmt.Errorf("%w: quality checker needs a chat model", apperrors.ErrConfiguration)
	}
	prompt, err := client.Prompt(client.PromptQualityCheck)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}
	return &Checker{chat: chat, prompt: prompt, log: logging.Component("quality")}, nil
}

// Check reviews code and returns the model's verdict.
func (c *Checker) Check(ctx context.Context, code string) (*models.QualityResult, error) {
	if strings.TrimSpace(code) == "" {
		return &models.QualityResult{IsValid: false, Issues: []string{"no source code was generated"}}, nil
	}
	msg, err := c.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(c.prompt),
		schema.UserMessage(code),
	})
	if err != nil {
		return nil, apperrors.Backend("quality check", err)
	}
	res, err := ParseResult(msg.Content)
	if err != nil {
		return nil, apperrors.Backend("quality check reply", err)
	}
	c.log.Debug().Bool("valid", res.IsValid).Int("issues", len(res.Issues)).Msg("quality check finished")
	return res, nil
}

// CheckDir reviews the sources under dir.
func (c *Checker) CheckDir(ctx context.Context, dir string) (*models.QualityResult, error) {
	code, err := CollectSources(dir)
	if err != nil {
		return nil, err
	}
	return c.Check(ctx, code)
}

// ParseResult validates a model reply against the result schema. A reply wrapped in a code
// fence is unwrapped first.
func ParseResult(reply string) (*models.QualityResult, error) {
	raw := strings.TrimSpace(reply)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.New("reply is not valid JSON")
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	var out models.QualityResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CollectSources concatenates the reviewable files under dir, each under a "// File:" header,
// in path order.
func CollectSources(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("collect sources: %w", err)
	}
	if !info.IsDir() {
		return "", apperrors.Validationf("%s is not a directory", dir)
	}

	var files []string
	for _, ext := range sourceExtensions {
		matches, err := filepathx.Glob(filepath.Join(dir, "**", "*."+ext))
		if err != nil {
			return "", fmt.Errorf("collect sources: %w", err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(dir, m)
			if err != nil || skipped(rel) || isLockFile(rel) {
				continue
			}
			files = append(files, rel)
		}
	}
	sort.Strings(files)

	var b strings.Builder
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			continue
		}
		if b.Len()+len(data) > MaxSourceBytes {
			break
		}
		fmt.Fprintf(&b, "// File: %s\n%s\n\n", filepath.ToSlash(rel), data)
	}
	return b.String(), nil
}

func skipped(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, d := range skippedDirs {
			if part == d {
				return true
			}
		}
	}
	return false
}

func isLockFile(rel string) bool {
	return filepath.Base(rel) == "package-lock.json"
}
