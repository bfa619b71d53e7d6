package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/logging"
	"codemother/internal/models"
	"codemother/internal/repositories"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ReplayMemory is the conversation memory history is loaded into.
type ReplayMemory interface {
	Clear()
	Add(msgs ...*schema.Message)
}

var errUnknownKind = errors.New("unknown turn kind")

type ChatHistoryService interface {
	AddMessage(ctx context.Context, appID, userID uint, message string) error
	AddFailure(ctx context.Context, appID, userID uint, message string) error
	// LoadIntoMemory replaces mem with up to maxCount prior turns and returns how many were
	// replayed. It never fails; load errors leave mem empty.
	LoadIntoMemory(ctx context.Context, appID uint, mem ReplayMemory, maxCount int) int
	ListDisplay(ctx context.Context, appID uint, beforeSequence int64, limit int) ([]models.Turn, error)
	DeleteByApp(ctx context.Context, appID uint) error
}

type chatHistoryService struct {
	turns repositories.TurnRepository
	log   zerolog.Logger
}

func NewChatHistoryService(turns repositories.TurnRepository) ChatHistoryService {
	return &chatHistoryService{turns: turns, log: logging.Component("history")}
}

func (s *chatHistoryService) AddMessage(ctx context.Context, appID, userID uint, message string) error {
	if appID == 0 {
		return apperrors.Validation("appID is required")
	}
	if strings.TrimSpace(message) == "" {
		return apperrors.Validation("message is required")
	}
	turn := models.NewUserTurn(message)
	turn.Stamp(appID, userID)
	if err := s.turns.Append(ctx, &turn); err != nil {
		return apperrors.Persistence("append user message", err)
	}
	return nil
}

func (s *chatHistoryService) AddFailure(ctx context.Context, appID, userID uint, message string) error {
	if appID == 0 {
		return apperrors.Validation("appID is required")
	}
	turn := models.NewFailureTurn(message)
	turn.Stamp(appID, userID)
	if err := s.turns.Append(ctx, &turn); err != nil {
		return apperrors.Persistence("append failure", err)
	}
	return nil
}

func (s *chatHistoryService) ListDisplay(ctx context.Context, appID uint, beforeSequence int64, limit int) ([]models.Turn, error) {
	if appID == 0 {
		return nil, apperrors.Validation("appID is required")
	}
	return s.turns.ListDisplay(ctx, appID, beforeSequence, limit)
}

func (s *chatHistoryService) DeleteByApp(ctx context.Context, appID uint) error {
	if appID == 0 {
		return apperrors.Validation("appID is required")
	}
	return s.turns.DeleteByApp(ctx, appID)
}

func (s *chatHistoryService) LoadIntoMemory(ctx context.Context, appID uint, mem ReplayMemory, maxCount int) int {
	log := s.log.With().Uint("app_id", appID).Logger()
	window, err := s.window(ctx, appID, maxCount)
	if err != nil {
		log.Error().Err(err).Msg("loading history failed, continuing without context")
		mem.Clear()
		return 0
	}

	msgs := make([]*schema.Message, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		msg, err := replay(window[i])
		if errors.Is(err, errUnknownKind) {
			log.Warn().Err(err).Msg("skipping turn")
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("loading history failed, continuing without context")
			mem.Clear()
			return 0
		}
		msgs = append(msgs, msg)
	}
	mem.Clear()
	mem.Add(msgs...)
	log.Debug().Int("turns", len(msgs)).Msg("history loaded into memory")
	return len(msgs)
}

// window returns the newest turns (newest first), skipping the most recent one, without
// cutting between a tool request and its result.
func (s *chatHistoryService) window(ctx context.Context, appID uint, maxCount int) ([]models.Turn, error) {
	total, err := s.turns.Count(ctx, appID)
	if err != nil {
		return nil, err
	}
	if total <= 1 || maxCount <= 0 {
		return nil, nil
	}
	available := int(total - 1)
	if available <= maxCount {
		return s.turns.Query(ctx, appID, 1, available)
	}

	// the oldest turn a window of maxCount would include
	edge, err := s.turns.Query(ctx, appID, maxCount, 1)
	if err != nil {
		return nil, err
	}
	widen := len(edge) == 1 && edge[0].Kind == models.TurnToolCallCompleted
	limit := maxCount
	if widen {
		limit = min(maxCount+1, available)
	}
	turns, err := s.turns.Query(ctx, appID, 1, limit)
	if err != nil {
		return nil, err
	}
	if !widen || len(turns) > maxCount {
		return turns, nil
	}

	s.log.Warn().Uint("app_id", appID).Int("max", maxCount).Msg("history window ends inside a tool call, shrinking")
	maxCount--
	if maxCount == 0 {
		return nil, nil
	}
	return s.turns.Query(ctx, appID, 1, min(maxCount, available))
}

func replay(t models.Turn) (*schema.Message, error) {
	switch t.Kind {
	case models.TurnUser:
		return schema.UserMessage(t.Payload), nil
	case models.TurnAIText:
		return schema.AssistantMessage(t.Payload, nil), nil
	case models.TurnToolCallRequested:
		req, err := t.ToolRequested()
		if err != nil {
			return nil, err
		}
		return schema.AssistantMessage(req.Text, []schema.ToolCall{{
			ID:       req.ID,
			Type:     "function",
			Function: schema.FunctionCall{Name: req.Name, Arguments: req.Arguments},
		}}), nil
	case models.TurnToolCallCompleted:
		res, err := t.ToolCompleted()
		if err != nil {
			return nil, err
		}
		content := res.Result
		if content == "" {
			content = res.Arguments
		}
		return &schema.Message{
			Role:       schema.Tool,
			Content:    content,
			ToolCallID: res.ID,
			ToolName:   res.Name,
		}, nil
	default:
		return nil, fmt.Errorf("turn %d: %w %q", t.ID, errUnknownKind, t.Kind)
	}
}
