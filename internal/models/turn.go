package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type TurnKind string

const (
	TurnUser              TurnKind = "user"
	TurnAIText            TurnKind = "ai"
	TurnToolCallRequested TurnKind = "tool_execution_request"
	TurnToolCallCompleted TurnKind = "tool_execution_result"
)

// TurnScope tells which view of the conversation a turn belongs to. The display log
// keeps one summary per AI reply; the memory view keeps the replayable tool trail.
type TurnScope string

const (
	ScopeShared  TurnScope = "shared"
	ScopeDisplay TurnScope = "display"
	ScopeMemory  TurnScope = "memory"
)

// MemoryScopes are the scopes eligible for replay into conversation memory.
var MemoryScopes = []TurnScope{ScopeShared, ScopeMemory}

// DisplayScopes are the scopes shown in the conversation log.
var DisplayScopes = []TurnScope{ScopeShared, ScopeDisplay}

// Turn is one persisted unit of conversation. Rows are append-only.
type Turn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AppID     uint      `gorm:"not null;uniqueIndex:idx_turn_app_sequence,priority:1" json:"appId"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Sequence  int64     `gorm:"not null;uniqueIndex:idx_turn_app_sequence,priority:2" json:"sequence"`
	Kind      TurnKind  `gorm:"size:32;not null" json:"kind"`
	Scope     TurnScope `gorm:"size:16;not null;index" json:"scope"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToolCallRequested records a tool call the model asked for, with the narration that preceded it.
type ToolCallRequested struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Text      string `json:"text,omitempty"`
}

// ToolCallCompleted records a finished tool call. Result may be empty.
type ToolCallCompleted struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
}

func NewUserTurn(text string) Turn {
	return Turn{Kind: TurnUser, Scope: ScopeShared, Payload: text}
}

// NewSummaryTurn is the display-log copy of a whole AI reply.
func NewSummaryTurn(text string) Turn {
	return Turn{Kind: TurnAIText, Scope: ScopeDisplay, Payload: text}
}

// NewSegmentTurn is AI narration replayed into memory.
func NewSegmentTurn(text string) Turn {
	return Turn{Kind: TurnAIText, Scope: ScopeMemory, Payload: text}
}

// NewFailureTurn records a failed reply in both views.
func NewFailureTurn(text string) Turn {
	return Turn{Kind: TurnAIText, Scope: ScopeShared, Payload: text}
}

func NewToolRequestedTurn(req ToolCallRequested) (Turn, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return Turn{}, fmt.Errorf("encode tool request: %w", err)
	}
	return Turn{Kind: TurnToolCallRequested, Scope: ScopeMemory, Payload: string(b)}, nil
}

func NewToolCompletedTurn(res ToolCallCompleted) (Turn, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return Turn{}, fmt.Errorf("encode tool result: %w", err)
	}
	return Turn{Kind: TurnToolCallCompleted, Scope: ScopeMemory, Payload: string(b)}, nil
}

func (t Turn) ToolRequested() (ToolCallRequested, error) {
	var req ToolCallRequested
	if t.Kind != TurnToolCallRequested {
		return req, fmt.Errorf("turn %d is %s, not a tool request", t.ID, t.Kind)
	}
	if err := json.Unmarshal([]byte(t.Payload), &req); err != nil {
		return req, fmt.Errorf("decode tool request %d: %w", t.ID, err)
	}
	return req, nil
}

func (t Turn) ToolCompleted() (ToolCallCompleted, error) {
	var res ToolCallCompleted
	if t.Kind != TurnToolCallCompleted {
		return res, fmt.Errorf("turn %d is %s, not a tool result", t.ID, t.Kind)
	}
	if err := json.Unmarshal([]byte(t.Payload), &res); err != nil {
		return res, fmt.Errorf("decode tool result %d: %w", t.ID, err)
	}
	return res, nil
}

// Stamp assigns ownership to a turn that was built before the request identity was attached.
func (t *Turn) Stamp(appID, userID uint) {
	t.AppID = appID
	t.UserID = userID
}
