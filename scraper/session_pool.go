package scraper

import (
	"context"
	"errors"

	"github.com/jackc/puddle/v2"
)

var ErrPoolClosed = puddle.ErrClosedPool

// SessionPool bounds how many browser sessions are in use at once across
// every job. Sessions are created lazily, handed out through With and
// either parked for reuse or destroyed when the call leaves them unusable.
type SessionPool[S any] struct {
	pool  *puddle.Pool[S]
	size  int
	reuse func(error) bool
}

func NewSessionPool[S any](size int, create func(ctx context.Context) (S, error), destroy func(S)) *SessionPool[S] {
	if size < 1 {
		size = 1
	}
	// NewPool only fails for MaxSize < 1
	p, _ := puddle.NewPool(&puddle.Config[S]{
		Constructor: create,
		Destructor:  destroy,
		MaxSize:     int32(size),
	})
	return &SessionPool[S]{pool: p, size: size, reuse: reusable}
}

func (p *SessionPool[S]) Size() int {
	return p.size
}

// With blocks until a session is free, runs fn with it and hands it back on
// every exit path, panics included. A session is kept only when fn returned
// an error that leaves it usable.
func (p *SessionPool[S]) With(ctx context.Context, fn func(ctx context.Context, s S) error) error {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return ErrPoolClosed
		}
		return err
	}

	keep := false
	defer func() {
		if keep {
			res.Release()
		} else {
			res.Destroy()
		}
	}()

	err = fn(ctx, res.Value())
	keep = p.reuse(err)
	return err
}

// Close destroys parked sessions and waits for sessions still in use to be
// handed back and destroyed.
func (p *SessionPool[S]) Close() {
	p.pool.Close()
}
