package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/washdeskhq/washdesk/internal/providers"
)

// Result source tags.
const (
	SourceAssistant = "assistant"
	SourceAI        = "ai"
	SourceKeywords  = "keywords"
)

const defaultSingleShotTimeout = 12 * time.Second

// notFoundMarker is the sentinel the assistant is instructed to emit when
// no catalog scenario applies.
const notFoundMarker = "NOT_FOUND"

// Result is the outcome of a resolution attempt. When Found is false the
// chain was exhausted and the caller escalates to a technician.
type Result struct {
	Found        bool
	ResponseText string
	Source       string
	ThreadID     string
}

// EngineConfig tunes the strategy chain.
type EngineConfig struct {
	// SingleShotTimeout bounds the classification call. Zero means 12s.
	SingleShotTimeout time.Duration
}

// Engine runs the strategy chain. Assistant and completer are optional;
// a nil provider skips its strategy. The keyword matcher always runs last
// before giving up.
type Engine struct {
	catalog   *Catalog
	assistant providers.Assistant
	completer providers.Completer
	cfg       EngineConfig
}

// NewEngine builds an Engine over the given catalog and providers.
func NewEngine(catalog *Catalog, assistant providers.Assistant, completer providers.Completer, cfg EngineConfig) *Engine {
	if cfg.SingleShotTimeout <= 0 {
		cfg.SingleShotTimeout = defaultSingleShotTimeout
	}
	return &Engine{catalog: catalog, assistant: assistant, completer: completer, cfg: cfg}
}

// Resolve walks the chain for a problem description. threadID is the
// assistant thread from an earlier attempt in the same session, or empty.
// Resolve never returns an error: every strategy failure falls through,
// and an exhausted chain is a Found=false result.
func (e *Engine) Resolve(ctx context.Context, description, threadID string) Result {
	if r, ok := e.tryAssistant(ctx, description, threadID); ok {
		return r
	}
	if r, ok := e.trySingleShot(ctx, description); ok {
		return r
	}
	if entry, score := matchKeywords(e.catalog, description); entry != nil {
		slog.Debug("resolution matched by keywords", "label", entry.Label, "score", score)
		return Result{Found: true, ResponseText: renderEntry(entry), Source: SourceKeywords}
	}
	return Result{Found: false}
}

func (e *Engine) tryAssistant(ctx context.Context, description, threadID string) (Result, bool) {
	if e.assistant == nil {
		return Result{}, false
	}
	tid, err := e.assistant.EnsureThread(ctx, threadID)
	if err != nil {
		slog.Warn("assistant thread unavailable", "error", err)
		return Result{}, false
	}
	reply, err := e.assistant.Ask(ctx, tid, assistantInstructions, description)
	if err != nil {
		slog.Warn("assistant strategy failed", "error", err)
		return Result{}, false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.Contains(strings.ToUpper(reply), notFoundMarker) {
		return Result{}, false
	}
	return Result{Found: true, ResponseText: reply, Source: SourceAssistant, ThreadID: tid}, true
}

const assistantInstructions = "You are a wash-site support assistant. Given a problem report, " +
	"reply with concrete resolution steps the customer can perform on site. " +
	"If you cannot determine applicable steps, reply with exactly NOT_FOUND."

// trySingleShot asks the completer to pick one catalog entry by index.
// Anything but a valid 1-based index falls through, including an explicit 0.
func (e *Engine) trySingleShot(ctx context.Context, description string) (Result, bool) {
	if e.completer == nil {
		return Result{}, false
	}
	entries := e.catalog.Entries()
	if len(entries) == 0 {
		return Result{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SingleShotTimeout)
	defer cancel()

	var b strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, entry.Label)
	}
	prompt := fmt.Sprintf("Problem report:\n%s\n\nScenarios:\n%s\nReply with the number of the matching scenario, or 0 if none match.",
		description, b.String())

	reply, err := e.completer.Complete(ctx, providers.CompletionRequest{
		System:    "You classify wash-site problem reports against a fixed scenario list. Reply with one number only.",
		Prompt:    prompt,
		MaxTokens: 8,
	})
	if err != nil {
		slog.Warn("classification strategy failed", "provider", e.completer.Name(), "error", err)
		return Result{}, false
	}

	idx, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil || idx < 1 || idx > len(entries) {
		return Result{}, false
	}
	entry := entries[idx-1]
	slog.Debug("resolution matched by classification", "label", entry.Label)
	return Result{Found: true, ResponseText: renderEntry(&entry), Source: SourceAI}, true
}

// renderEntry formats a catalog entry for the customer: label, numbered
// steps, then notes when present.
func renderEntry(e *CatalogEntry) string {
	var b strings.Builder
	b.WriteString(e.Label)
	for i, step := range e.Steps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, step)
	}
	if e.Notes != "" {
		b.WriteString("\n")
		b.WriteString(e.Notes)
	}
	return b.String()
}
