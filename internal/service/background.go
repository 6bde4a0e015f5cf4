package service

import "golang.org/x/sync/errgroup"

// Background runs the post-commit side effects of a write off the caller's path. The zero
// value is ready to use.
type Background struct {
	g errgroup.Group
}

func (b *Background) Go(fn func()) {
	b.g.Go(func() error {
		fn()
		return nil
	})
}

// Wait blocks until every side effect started so far has finished.
func (b *Background) Wait() {
	_ = b.g.Wait()
}
