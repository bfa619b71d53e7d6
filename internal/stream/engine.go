package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/llm/tools"
	"codemother/internal/logging"
	"codemother/internal/models"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const failurePrefix = "AI reply failed: "

// ToolResolver looks up how a tool call is displayed.
type ToolResolver interface {
	Resolve(name string) (tools.Descriptor, error)
}

// TurnWriter is the part of the history store the engine writes to.
type TurnWriter interface {
	Append(ctx context.Context, turn *models.Turn) error
	AppendBatch(ctx context.Context, turns []models.Turn) error
}

// CodeSaver parses a finished code-block reply and writes it to disk, returning the directory.
type CodeSaver interface {
	Save(ctx context.Context, genType models.GenerationType, appID uint, raw string) (string, error)
}

// ProjectBuilder builds a tool-generated project in the background.
type ProjectBuilder interface {
	BuildAsync(dir string)
}

// Request identifies one generation for persistence and post-processing.
type Request struct {
	AppID  uint
	UserID uint
	Type   models.GenerationType
	// Persist writes the turn trail to the history store.
	Persist bool
	// Build triggers the project builder for tool-generated projects.
	Build bool
}

// Result is what a completed stream produced.
type Result struct {
	Text string
	// Dir is where the generated sources live, empty when nothing was saved.
	Dir string
}

// Engine turns a backend event stream into display chunks and a replayable turn trail.
type Engine struct {
	tools      ToolResolver
	store      TurnWriter
	saver      CodeSaver
	builder    ProjectBuilder
	outputRoot string
	log        zerolog.Logger
}

func NewEngine(resolver ToolResolver, store TurnWriter, saver CodeSaver, builder ProjectBuilder, outputRoot string) *Engine {
	return &Engine{
		tools:      resolver,
		store:      store,
		saver:      saver,
		builder:    builder,
		outputRoot: outputRoot,
		log:        logging.Component("stream"),
	}
}

// reconstruction is the per-invocation state.
type reconstruction struct {
	turnText    strings.Builder
	segmentText strings.Builder
	seen        map[string]struct{}
	pending     []models.Turn
	sink        Sink
	detached    bool
}

func (r *reconstruction) emit(c Chunk) {
	if r.detached {
		return
	}
	if r.sink.Send(c) {
		r.detached = true
	}
}

// Run processes events in the background and returns the display stream. done, when not
// nil, is called with the outcome after persistence finished and before the stream closes.
func (e *Engine) Run(ctx context.Context, events *schema.StreamReader[Event], req Request, done func(Result, error)) *schema.StreamReader[Chunk] {
	sr, sw := schema.Pipe[Chunk](32)
	go func() {
		defer sw.Close()
		res, err := e.Process(ctx, events, req, NewPipeSink(sw))
		if done != nil {
			done(res, err)
		}
	}()
	return sr
}

// Process consumes events until the stream ends, forwarding display chunks to sink in input
// order. The returned error is the backend error that ended the stream, if any; it has
// already been reported to sink as an error chunk.
func (e *Engine) Process(ctx context.Context, events *schema.StreamReader[Event], req Request, sink Sink) (Result, error) {
	defer events.Close()
	if sink == nil {
		sink = Discard
	}
	st := &reconstruction{seen: map[string]struct{}{}, sink: sink}
	log := e.log.With().Uint("app_id", req.AppID).Str("type", string(req.Type)).Logger()

	for {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return e.fail(ctx, req, st, err, log)
		}
		wasDetached := st.detached
		switch ev.Kind {
		case TextDelta:
			st.turnText.WriteString(ev.Text)
			st.segmentText.WriteString(ev.Text)
			st.emit(Chunk{Type: ChunkText, Data: ev.Text})
		case ToolAnnounced:
			e.announce(st, ev, log)
		case ToolCompleted:
			e.complete(st, ev, log)
		default:
			log.Warn().Int("kind", int(ev.Kind)).Msg("ignoring unknown event kind")
		}
		if st.detached && !wasDetached {
			log.Info().Msg("display consumer went away, continuing to persist")
		}
	}

	res := e.finish(ctx, req, st, log)
	st.emit(DoneMarker)
	return res, nil
}

func (e *Engine) resolve(name string, log zerolog.Logger) tools.Descriptor {
	if e.tools != nil {
		d, err := e.tools.Resolve(name)
		if err == nil {
			return d
		}
		log.Warn().Err(err).Str("tool", name).Msg("unknown tool in stream")
	}
	return tools.Placeholder{ToolName: name}
}

func (e *Engine) announce(st *reconstruction, ev Event, log zerolog.Logger) {
	if ev.ToolID == "" {
		return
	}
	if _, ok := st.seen[ev.ToolID]; ok {
		return
	}
	st.seen[ev.ToolID] = struct{}{}
	st.emit(Chunk{Type: ChunkText, Data: fmt.Sprintf("\n\n%s\n\n", e.resolve(ev.ToolName, log).FormatAnnouncement())})
}

func (e *Engine) complete(st *reconstruction, ev Event, log zerolog.Logger) {
	requested, err := models.NewToolRequestedTurn(models.ToolCallRequested{
		ID:        ev.ToolID,
		Name:      ev.ToolName,
		Arguments: ev.Arguments,
		Text:      st.segmentText.String(),
	})
	if err == nil {
		var completed models.Turn
		completed, err = models.NewToolCompletedTurn(models.ToolCallCompleted{
			ID:        ev.ToolID,
			Name:      ev.ToolName,
			Arguments: ev.Arguments,
			Result:    ev.Result,
		})
		if err == nil {
			st.pending = append(st.pending, requested, completed)
		}
	}
	if err != nil {
		log.Error().Err(err).Str("tool_id", ev.ToolID).Msg("dropping tool pair from history")
	}
	st.segmentText.Reset()

	formatted := fmt.Sprintf("\n\n%s\n\n", e.resolve(ev.ToolName, log).FormatResult(ev.Arguments))
	st.turnText.WriteString(formatted)
	st.emit(Chunk{Type: ChunkText, Data: formatted})
}

// finish persists the turn trail and hands the output to the saver or the builder.
func (e *Engine) finish(ctx context.Context, req Request, st *reconstruction, log zerolog.Logger) Result {
	res := Result{Text: st.turnText.String()}
	// the caller may have gone away; history still has to be written
	persistCtx := context.WithoutCancel(ctx)

	if req.Persist && e.store != nil {
		if len(st.pending) > 0 {
			for i := range st.pending {
				st.pending[i].Stamp(req.AppID, req.UserID)
			}
			if err := e.store.AppendBatch(persistCtx, st.pending); err != nil {
				log.Error().Err(apperrors.Persistence("append tool batch", err)).Int("turns", len(st.pending)).Msg("tool trail not persisted")
			}
		}
		summary := models.NewSummaryTurn(res.Text)
		summary.Stamp(req.AppID, req.UserID)
		if err := e.store.Append(persistCtx, &summary); err != nil {
			log.Error().Err(apperrors.Persistence("append summary", err)).Msg("reply summary not persisted")
		}
		if segment := st.segmentText.String(); segment != "" {
			turn := models.NewSegmentTurn(segment)
			turn.Stamp(req.AppID, req.UserID)
			if err := e.store.Append(persistCtx, &turn); err != nil {
				log.Error().Err(apperrors.Persistence("append segment", err)).Msg("trailing reply not persisted")
			}
		}
	}

	if req.Type.UsesTools() {
		res.Dir = filepath.Join(e.outputRoot, req.Type.DirName(req.AppID))
		if req.Build && e.builder != nil {
			e.builder.BuildAsync(res.Dir)
		}
		return res
	}
	if e.saver != nil {
		dir, err := e.saver.Save(persistCtx, req.Type, req.AppID, res.Text)
		if err != nil {
			log.Error().Err(err).Msg("saving generated code failed")
			return res
		}
		res.Dir = dir
	}
	return res
}

func (e *Engine) fail(ctx context.Context, req Request, st *reconstruction, cause error, log zerolog.Logger) (Result, error) {
	log.Error().Err(cause).Msg("generation stream failed")
	if req.Persist && e.store != nil {
		turn := models.NewFailureTurn(failurePrefix + cause.Error())
		turn.Stamp(req.AppID, req.UserID)
		if err := e.store.Append(context.WithoutCancel(ctx), &turn); err != nil {
			log.Error().Err(apperrors.Persistence("append failure", err)).Msg("failure notice not persisted")
		}
	}
	st.emit(Chunk{Type: ChunkError, Data: cause.Error()})
	st.emit(DoneMarker)
	return Result{Text: st.turnText.String()}, cause
}
