// Package password hashes and verifies credentials with bcrypt on a bounded
// pool of worker goroutines, so request goroutines only wait for a result
// and never run the key derivation themselves.
package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const defaultQueueDepth = 64

var (
	ErrHashing    = errors.New("password hashing failed")
	ErrScheduling = errors.New("password hashing could not be scheduled")
)

type Options struct {
	// Workers is the number of goroutines running bcrypt. Defaults to the CPU count.
	Workers int
	// QueueDepth bounds jobs waiting for a worker. A full queue rejects new
	// work with ErrScheduling instead of blocking the caller.
	QueueDepth int
	// Cost is the bcrypt work factor. Zero means bcrypt.DefaultCost.
	Cost int
}

type Hasher struct {
	cost  int
	jobs  chan func()
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
}

func NewHasher(options Options) *Hasher {
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	depth := options.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	cost := options.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	h := &Hasher{
		cost: cost,
		jobs: make(chan func(), depth),
	}
	for range workers {
		h.group.Go(func() error {
			for job := range h.jobs {
				job()
			}
			return nil
		})
	}

	return h
}

// Hash returns the bcrypt encoding of password. Cancelling ctx abandons the
// wait; a job already queued still runs and its result is dropped.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	type result struct {
		hash []byte
		err  error
	}
	done := make(chan result, 1)

	err := h.submit(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
		done <- result{hash: hash, err: err}
	})
	if err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %w", ErrHashing, res.err)
		}
		return string(res.hash), nil
	}
}

// Verify reports whether password matches hashed. A mismatch is (false, nil);
// an unreadable hash is ErrHashing.
func (h *Hasher) Verify(ctx context.Context, password, hashed string) (bool, error) {
	done := make(chan error, 1)

	err := h.submit(func() {
		done <- bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	})
	if err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-done:
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %w", ErrHashing, err)
		}
	}
}

// Close stops accepting work and waits for queued jobs to drain.
func (h *Hasher) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.jobs)
	h.mu.Unlock()

	return h.group.Wait()
}

func (h *Hasher) submit(job func()) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return fmt.Errorf("%w: hasher closed", ErrScheduling)
	}

	select {
	case h.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: queue full", ErrScheduling)
	}
}
