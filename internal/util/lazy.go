package util

import (
	"fmt"
	"sync"
)

// Lazy builds a shared value on first use. Concurrent first callers block on the
// same construction; the value and error are reused for the process lifetime.
// A panic inside build is cached as an ErrIntegrity error.
type Lazy[T any] struct {
	once  sync.Once
	build func() (T, error)
	val   T
	err   error
}

func NewLazy[T any](build func() (T, error)) *Lazy[T] {
	return &Lazy[T]{build: build}
}

func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				l.val, l.err = zero, fmt.Errorf("%w: build panicked: %v", ErrIntegrity, r)
			}
		}()
		l.val, l.err = l.build()
	})
	return l.val, l.err
}
