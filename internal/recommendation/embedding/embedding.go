// Package embedding turns profile and query text into dense vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	apperrors "nisu-recommender/internal/common/errors"
)

// Embedder produces fixed-width vectors. Dimension is known without loading
// the model so callers can guard against width mismatches up front.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Factory builds the backing model on first use.
type Factory func() (Embedder, error)

// Lazy owns a model that is initialized once, on the first non-empty
// request. After initialization Embed takes no lock.
type Lazy struct {
	factory Factory
	dims    int

	model atomic.Pointer[Embedder]
	mu    sync.Mutex
}

func NewLazy(dims int, factory Factory) *Lazy {
	return &Lazy{factory: factory, dims: dims}
}

func (l *Lazy) Dimension() int {
	return l.dims
}

// Embed returns an empty vector for blank text. A model error, or an empty
// vector for non-empty text, is an EMBEDDING_FAILED error.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}

	model, err := l.get()
	if err != nil {
		return nil, apperrors.NewEmbeddingFailedError(err)
	}

	vec, err := model.Embed(ctx, text)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.NewEmbeddingFailedError(err)
	}
	if len(vec) == 0 {
		return nil, apperrors.NewEmbeddingFailedError(fmt.Errorf("model returned an empty vector"))
	}
	return vec, nil
}

// Initialized reports whether the model has been built.
func (l *Lazy) Initialized() bool {
	return l.model.Load() != nil
}

func (l *Lazy) get() (Embedder, error) {
	if m := l.model.Load(); m != nil {
		return *m, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if m := l.model.Load(); m != nil {
		return *m, nil
	}

	model, err := l.factory()
	if err != nil {
		return nil, fmt.Errorf("initialize embedding model: %w", err)
	}
	l.model.Store(&model)
	return model, nil
}
