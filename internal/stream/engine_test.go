package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"codemother/internal/apperrors"
	"codemother/internal/llm/tools"
	"codemother/internal/models"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu       sync.Mutex
	turns    []models.Turn
	batches  int
	batchErr error
}

func (s *memStore) Append(_ context.Context, turn *models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, *turn)
	return nil
}

func (s *memStore) AppendBatch(_ context.Context, turns []models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.batchErr != nil {
		return s.batchErr
	}
	s.turns = append(s.turns, turns...)
	return nil
}

func (s *memStore) snapshot() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.turns...)
}

type recordingSaver struct {
	raw string
	dir string
	err error
}

func (r *recordingSaver) Save(_ context.Context, _ models.GenerationType, _ uint, raw string) (string, error) {
	r.raw = raw
	return r.dir, r.err
}

type recordingBuilder struct {
	mu   sync.Mutex
	dirs []string
}

func (b *recordingBuilder) BuildAsync(dir string) {
	b.mu.Lock()
	b.dirs = append(b.dirs, dir)
	b.mu.Unlock()
}

func events(evs ...Event) *schema.StreamReader[Event] {
	return schema.StreamReaderFromArray(evs)
}

func failingEvents(err error, evs ...Event) *schema.StreamReader[Event] {
	sr, sw := schema.Pipe[Event](len(evs) + 1)
	for _, ev := range evs {
		sw.Send(ev, nil)
	}
	sw.Send(Event{}, err)
	sw.Close()
	return sr
}

func newTestEngine(store *memStore) (*Engine, *recordingSaver, *recordingBuilder) {
	saver := &recordingSaver{dir: "/out/html_7"}
	builder := &recordingBuilder{}
	return NewEngine(tools.Default(), store, saver, builder, "/out"), saver, builder
}

var vueReq = Request{AppID: 7, UserID: 3, Type: models.GenerationVueProject, Persist: true, Build: true}

func TestProcess_RepeatedAnnouncementsProduceOneChunk(t *testing.T) {
	store := &memStore{}
	engine, _, _ := newTestEngine(store)
	sink := &BufferSink{}

	_, err := engine.Process(context.Background(), events(
		NewToolAnnounced("c1", "write_file", `{"rel`),
		NewToolAnnounced("c1", "write_file", `ativeFilePath"`),
		NewToolAnnounced("c1", "write_file", `:"a.js"}`),
	), vueReq, sink)
	require.NoError(t, err)

	chunks := sink.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, Chunk{Type: ChunkText, Data: "\n\n[Tool selected] Write file\n\n"}, chunks[0])
	assert.Equal(t, DoneMarker, chunks[1])
}

func TestProcess_ToolTrailAndSegments(t *testing.T) {
	store := &memStore{}
	engine, saver, builder := newTestEngine(store)
	sink := &BufferSink{}
	args := `{"relativeFilePath":"src/App.vue","content":"<template/>"}`

	res, err := engine.Process(context.Background(), events(
		NewTextDelta("Creating the app. "),
		NewToolAnnounced("c1", "write_file", args),
		NewToolCompleted("c1", "write_file", args, "ok"),
		NewTextDelta("Done."),
	), vueReq, sink)
	require.NoError(t, err)

	formatted := "\n\n[Tool call] Write file src/App.vue\n```vue\n<template/>\n```\n\n"
	// announcements are display-only
	assert.Equal(t, "Creating the app. "+formatted+"Done.", res.Text)
	assert.Equal(t, "Creating the app. \n\n[Tool selected] Write file\n\n"+formatted+"Done.", sink.Text())
	assert.Equal(t, "/out/vue_project_7", res.Dir)
	assert.Equal(t, []string{"/out/vue_project_7"}, builder.dirs)
	assert.Empty(t, saver.raw)

	turns := store.snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, 1, store.batches)

	req, err := turns[0].ToolRequested()
	require.NoError(t, err)
	assert.Equal(t, "c1", req.ID)
	assert.Equal(t, "Creating the app. ", req.Text)
	done, err := turns[1].ToolCompleted()
	require.NoError(t, err)
	assert.Equal(t, "ok", done.Result)

	assert.Equal(t, models.TurnAIText, turns[2].Kind)
	assert.Equal(t, models.ScopeDisplay, turns[2].Scope)
	assert.Equal(t, res.Text, turns[2].Payload)

	assert.Equal(t, models.ScopeMemory, turns[3].Scope)
	assert.Equal(t, "Done.", turns[3].Payload)

	for _, turn := range turns {
		assert.Equal(t, uint(7), turn.AppID)
		assert.Equal(t, uint(3), turn.UserID)
	}
}

func TestProcess_TextOnlySavesCode(t *testing.T) {
	store := &memStore{}
	engine, saver, builder := newTestEngine(store)
	req := Request{AppID: 7, UserID: 3, Type: models.GenerationHTML, Persist: true}

	res, err := engine.Process(context.Background(), events(NewTextDelta("```html\n<p>x</p>\n```")), req, nil)
	require.NoError(t, err)

	assert.Equal(t, "```html\n<p>x</p>\n```", saver.raw)
	assert.Equal(t, "/out/html_7", res.Dir)
	assert.Empty(t, builder.dirs)

	turns := store.snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, models.ScopeDisplay, turns[0].Scope)
	assert.Equal(t, models.ScopeMemory, turns[1].Scope)
	assert.Equal(t, 0, store.batches)
}

func TestProcess_UnknownToolUsesPlaceholder(t *testing.T) {
	engine, _, _ := newTestEngine(&memStore{})
	sink := &BufferSink{}

	_, err := engine.Process(context.Background(), events(
		NewToolAnnounced("c9", "teleport", "{}"),
		NewToolCompleted("c9", "teleport", "{}", ""),
	), vueReq, sink)
	require.NoError(t, err)

	chunks := sink.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, "\n\n[Tool selected] teleport\n\n", chunks[0].Data)
	assert.Equal(t, "\n\n[Tool call] teleport\n\n", chunks[1].Data)
}

func TestProcess_BatchFailureWritesNoToolTurns(t *testing.T) {
	store := &memStore{batchErr: errors.New("disk full")}
	engine, _, _ := newTestEngine(store)

	_, err := engine.Process(context.Background(), events(
		NewToolCompleted("c1", "read_file", `{"relativeFilePath":"a"}`, "x"),
		NewToolCompleted("c2", "read_file", `{"relativeFilePath":"b"}`, "y"),
	), vueReq, Discard)
	require.NoError(t, err)

	for _, turn := range store.snapshot() {
		assert.NotEqual(t, models.TurnToolCallRequested, turn.Kind)
		assert.NotEqual(t, models.TurnToolCallCompleted, turn.Kind)
	}
	assert.Equal(t, 1, store.batches)
}

func TestProcess_ErrorPersistsFailureAndEndsStream(t *testing.T) {
	store := &memStore{}
	engine, saver, builder := newTestEngine(store)
	sink := &BufferSink{}
	cause := apperrors.Backend("model stream", errors.New("503"))

	_, err := engine.Process(context.Background(), failingEvents(cause, NewTextDelta("partial")), vueReq, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBackend)

	chunks := sink.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Type: ChunkText, Data: "partial"}, chunks[0])
	assert.Equal(t, ChunkError, chunks[1].Type)
	assert.Equal(t, DoneMarker, chunks[2])

	turns := store.snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, models.ScopeShared, turns[0].Scope)
	assert.Contains(t, turns[0].Payload, "AI reply failed: ")
	assert.Empty(t, builder.dirs)
	assert.Empty(t, saver.raw)
}

func TestProcess_DetachedConsumerStillPersists(t *testing.T) {
	store := &memStore{}
	engine, _, _ := newTestEngine(store)
	sink := &BufferSink{CloseAfter: 1}

	res, err := engine.Process(context.Background(), events(
		NewTextDelta("one "),
		NewTextDelta("two "),
		NewTextDelta("three"),
	), vueReq, sink)
	require.NoError(t, err)

	assert.Len(t, sink.Chunks(), 1)
	assert.Equal(t, "one two three", res.Text)
	turns := store.snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "one two three", turns[0].Payload)
}

func TestProcess_NoPersistence(t *testing.T) {
	store := &memStore{}
	engine, _, _ := newTestEngine(store)
	req := vueReq
	req.Persist = false

	_, err := engine.Process(context.Background(), events(NewTextDelta("hi")), req, Discard)
	require.NoError(t, err)
	assert.Empty(t, store.snapshot())
}

func TestRun_StreamsChunksAndEndsWithDone(t *testing.T) {
	engine, _, _ := newTestEngine(&memStore{})

	var finished Result
	sr := engine.Run(context.Background(), events(NewTextDelta("a"), NewTextDelta("b")), vueReq, func(res Result, err error) {
		assert.NoError(t, err)
		finished = res
	})
	defer sr.Close()

	var got []Chunk
	for {
		c, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, c)
	}
	assert.Equal(t, []Chunk{{Type: ChunkText, Data: "a"}, {Type: ChunkText, Data: "b"}, DoneMarker}, got)
	assert.Equal(t, "ab", finished.Text)
}

func TestWriterSink(t *testing.T) {
	var b strings.Builder
	sink := WriterSink{W: &b}

	assert.False(t, sink.Send(Chunk{Type: ChunkText, Data: "hello"}))
	assert.False(t, sink.Send(Chunk{Type: ChunkError, Data: "503"}))
	assert.False(t, sink.Send(DoneMarker))
	assert.Equal(t, "hello\nerror: 503\n", b.String())
}
