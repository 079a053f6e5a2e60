package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDefinitionPath = "/home/claude/CLAUDE.md"

	// sharedReadTimeout bounds a coalesced read once it no longer follows any
	// single caller's context
	sharedReadTimeout = 2 * time.Minute
)

// SessionExecutor runs commands inside a session's sandbox
type SessionExecutor interface {
	ExecInSession(ctx context.Context, id string, command []string) (*types.ExecResult, error)
}

// Extractor reads a stage definition file out of a running sandbox. Missing
// files and unparseable content produce an empty list; session errors are
// returned to the caller unchanged.
type Extractor struct {
	sessions    SessionExecutor
	defaultPath string
	markdown    goldmark.Markdown
	group       singleflight.Group
}

func NewExtractor(sessions SessionExecutor, config types.StagesConfig) *Extractor {
	path := config.DefinitionPath
	if path == "" {
		path = DefaultDefinitionPath
	}
	return &Extractor{
		sessions:    sessions,
		defaultPath: path,
		markdown:    goldmark.New(),
	}
}

// Extract returns the stages defined in the file at path inside the session.
// An empty path reads the configured default.
func (x *Extractor) Extract(ctx context.Context, sessionId, path string) ([]types.Stage, error) {
	if path == "" {
		path = x.defaultPath
	}

	// Concurrent reads of the same file in the same session share one exec.
	// Each caller waits on its own context; the shared read outlives any of them.
	ch := x.group.DoChan(sessionId+"\x00"+path, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		return x.read(readCtx, sessionId, path)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	shared := res.Val.([]types.Stage)
	stages := make([]types.Stage, len(shared))
	copy(stages, shared)
	return stages, nil
}

func (x *Extractor) read(ctx context.Context, sessionId, path string) ([]types.Stage, error) {
	result, err := x.sessions.ExecInSession(ctx, sessionId, []string{"cat", "--", path})
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		log.Debug().
			Str("session_id", sessionId).
			Str("path", path).
			Int("exit_code", result.ExitCode).
			Str("stderr", strings.TrimSpace(result.Stderr)).
			Msg("stage definition not readable")
		return []types.Stage{}, nil
	}

	stages := x.Parse([]byte(result.Stdout))
	log.Debug().Str("session_id", sessionId).Str("path", path).Int("stages", len(stages)).Msg("stages extracted")
	return stages, nil
}

// Parse finds the first fenced json block holding an object with a stages
// array and returns that array. It never fails; anything else yields an
// empty list.
func (x *Extractor) Parse(source []byte) []types.Stage {
	document := x.markdown.Parser().Parse(text.NewReader(source))

	var found []types.Stage
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || node.Kind() != ast.KindFencedCodeBlock {
			return ast.WalkContinue, nil
		}

		block := node.(*ast.FencedCodeBlock)
		if !isJSONLanguage(string(block.Language(source))) {
			return ast.WalkSkipChildren, nil
		}

		if stages, ok := decodeStages(blockContent(block, source)); ok {
			found = stages
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	if found == nil {
		return []types.Stage{}
	}
	return found
}

func isJSONLanguage(lang string) bool {
	return strings.EqualFold(strings.TrimSpace(lang), "json")
}

func blockContent(block *ast.FencedCodeBlock, source []byte) []byte {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return buf.Bytes()
}

// decodeStages keeps the object entries of the stages array in order and
// drops anything else
func decodeStages(content []byte) ([]types.Stage, bool) {
	var doc struct {
		Stages *[]json.RawMessage `json:"stages"`
	}
	if err := json.Unmarshal(content, &doc); err != nil || doc.Stages == nil {
		return nil, false
	}

	stages := make([]types.Stage, 0, len(*doc.Stages))
	for _, raw := range *doc.Stages {
		var stage types.Stage
		if err := json.Unmarshal(raw, &stage); err != nil || stage == nil {
			continue
		}
		stages = append(stages, stage)
	}
	return stages, true
}
