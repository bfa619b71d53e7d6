package client

import (
	"context"
	"fmt"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// TypeRouter asks a model which generation type fits a prompt.
type TypeRouter struct {
	ChatModel model.BaseChatModel
}

func NewTypeRouter(m model.BaseChatModel) *TypeRouter {
	return &TypeRouter{ChatModel: m}
}

func (r *TypeRouter) Route(ctx context.Context, prompt string) (models.GenerationType, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.Validation("prompt is required")
	}
	system, err := Prompt(PromptRouting)
	if err != nil {
		return "", err
	}
	reply, err := r.ChatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", apperrors.Backend("route", err)
	}
	if reply == nil {
		return "", apperrors.Backend("route", fmt.Errorf("empty reply"))
	}
	return parseRoute(reply.Content)
}

// parseRoute accepts the bare type name, tolerating case, quotes and surrounding prose.
func parseRoute(reply string) (models.GenerationType, error) {
	clean := strings.ToLower(strings.Trim(strings.TrimSpace(reply), "`\"'. \n"))
	if t, err := models.ParseGenerationType(clean); err == nil {
		return t, nil
	}
	// longest names first so "multi_file" is not shadowed by a shorter match
	for _, t := range []models.GenerationType{models.GenerationVueProject, models.GenerationMultiFile, models.GenerationHTML} {
		if strings.Contains(clean, string(t)) {
			return t, nil
		}
	}
	return "", apperrors.Backend("route", fmt.Errorf("unrecognised generation type %q", reply))
}
