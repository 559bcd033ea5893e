package jit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sarchlab/rvjit/emu"
)

// CodeSource supplies the instruction word at a guest pc. *emu.Bus
// satisfies it.
type CodeSource interface {
	Fetch(pc uint32) (uint32, *emu.Fault)
}

// Stats holds translation cache counters.
type Stats struct {
	Builds   uint64
	Hits     uint64
	Refusals uint64
	Failures uint64
	Entries  int
}

// Engine owns the translation cache. Lookup may be called from the
// dispatch loop while builds complete on other goroutines.
type Engine struct {
	code       CodeSource
	translator *Translator
	backend    Backend
	logger     *slog.Logger

	keepArtifacts bool

	cache *cache
	group singleflight.Group
	wg    sync.WaitGroup

	builds   atomic.Uint64
	hits     atomic.Uint64
	refusals atomic.Uint64
	failures atomic.Uint64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for build failures.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithKeepArtifacts leaves build outputs on disk after eviction and Close.
func WithKeepArtifacts(keep bool) EngineOption {
	return func(e *Engine) {
		e.keepArtifacts = keep
	}
}

// NewEngine creates an Engine that reads guest code from code.
func NewEngine(code CodeSource, translator *Translator, backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		code:       code,
		translator: translator,
		backend:    backend,
		logger:     slog.Default(),
		cache:      newCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lookup returns the loaded block entered at pc.
func (e *Engine) Lookup(pc uint32) (*Entry, bool) {
	entry, ok := e.cache.lookup(pc)
	if ok {
		e.hits.Add(1)
	}
	return entry, ok
}

// Translate translates, builds and loads the block at pc, or returns the
// cached entry. A pc that failed once is never retried; later calls return
// an error wrapping ErrUntranslatable and the first failure.
func (e *Engine) Translate(pc uint32) (*Entry, error) {
	if entry, ok := e.cache.lookup(pc); ok {
		return entry, nil
	}
	if err := e.cache.failure(pc); err != nil {
		return nil, untranslatable(pc, err)
	}

	block, err := e.translate(pc)
	if err != nil {
		return nil, err
	}
	return e.build(block)
}

// TranslateAsync translates the block at pc on the calling goroutine and
// builds it in the background. The entry becomes visible to Lookup once
// loaded. Only translation refusals are reported.
func (e *Engine) TranslateAsync(pc uint32) error {
	if err := e.cache.failure(pc); err != nil {
		return untranslatable(pc, err)
	}
	if !e.cache.claim(pc) {
		return nil
	}

	block, err := e.translate(pc)
	if err != nil {
		return err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = e.build(block)
	}()

	return nil
}

// Wait blocks until all background builds finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) translate(pc uint32) (*Block, error) {
	limit := e.translator.MaxInstructions()
	words := make([]uint32, 0, limit)
	for i := 0; i < limit; i++ {
		word, fault := e.code.Fetch(pc + uint32(4*i))
		if fault != nil {
			break
		}
		words = append(words, word)
	}

	block, ok := e.translator.Translate(pc, words)
	if !ok {
		e.refusals.Add(1)
		err := fmt.Errorf("%w: pc 0x%08x", ErrEmptyBlock, pc)
		e.cache.fail(pc, err)
		return nil, err
	}

	return block, nil
}

func (e *Engine) build(block *Block) (*Entry, error) {
	v, err, _ := e.group.Do(block.Name, func() (any, error) {
		if entry, ok := e.cache.lookup(block.PC); ok {
			return entry, nil
		}
		if err := e.cache.failure(block.PC); err != nil {
			return nil, untranslatable(block.PC, err)
		}

		entry, err := e.buildAndLoad(block)
		if err != nil {
			e.failures.Add(1)
			e.cache.fail(block.PC, err)
			e.logFailure(block, err)
			if !e.keepArtifacts {
				_ = e.backend.Purge(block.Name)
			}
			return nil, err
		}

		e.builds.Add(1)
		e.cache.publish(entry)
		e.logger.Debug("block compiled",
			"pc", fmt.Sprintf("0x%08x", block.PC), "instructions", block.Count)

		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (e *Engine) buildAndLoad(block *Block) (*Entry, error) {
	artifact, err := e.backend.Build(block.Name, block.Source)
	if err != nil {
		return nil, err
	}

	fn, err := e.backend.Load(artifact)
	if err != nil {
		return nil, err
	}

	return &Entry{
		PC:       block.PC,
		Name:     block.Name,
		Source:   block.Source,
		Artifact: artifact,
		Count:    block.Count,
		fn:       fn,
	}, nil
}

func (e *Engine) logFailure(block *Block, err error) {
	pc := fmt.Sprintf("0x%08x", block.PC)
	if errors.Is(err, ErrUnsupported) {
		e.logger.Debug("backend cannot build blocks", "pc", pc)
		return
	}
	e.logger.Warn("block build failed, falling back to the interpreter", "pc", pc, "err", err)
}

// Evict unloads the block at pc and forgets any failure recorded for it,
// so the next Translate starts over. Hosts that modify guest code must
// evict the affected entry pcs.
func (e *Engine) Evict(pc uint32) error {
	entry := e.cache.remove(pc)
	if entry == nil {
		return nil
	}
	return e.release(entry)
}

// Discard unloads the block at pc and marks pc untranslatable with cause,
// so it is interpreted from now on. Used when a loaded block declines to
// run.
func (e *Engine) Discard(pc uint32, cause error) error {
	entry := e.cache.remove(pc)
	e.cache.fail(pc, cause)
	e.failures.Add(1)
	if entry == nil {
		return nil
	}
	return e.release(entry)
}

func (e *Engine) release(entry *Entry) error {
	err := e.backend.Unload(entry.fn)
	if !e.keepArtifacts {
		err = errors.Join(err, e.backend.Purge(entry.Name))
	}
	return err
}

// Close waits for background builds and unloads every block.
func (e *Engine) Close() error {
	e.Wait()

	var err error
	for _, entry := range e.cache.drain() {
		err = errors.Join(err, e.release(entry))
	}

	if closer, ok := e.backend.(io.Closer); ok && !e.keepArtifacts {
		err = errors.Join(err, closer.Close())
	}

	return err
}

// Stats returns a snapshot of the cache counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Builds:   e.builds.Load(),
		Hits:     e.hits.Load(),
		Refusals: e.refusals.Load(),
		Failures: e.failures.Load(),
		Entries:  e.cache.size(),
	}
}

func untranslatable(pc uint32, cause error) error {
	return fmt.Errorf("%w: pc 0x%08x: %w", ErrUntranslatable, pc, cause)
}
