package memory

import (
	"context"
	"fmt"
	"sync"

	"splitledger/internal/core"
	ports "splitledger/internal/sheets"
)

// Store is an in-process ExpenseMirror.
type Store struct {
	mu   sync.Mutex
	rows [][]any
	ids  []uint64
	err  error
}

var _ ports.ExpenseMirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the rendered row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, ports.Row(e))
	s.ids = append(s.ids, e.ID)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// SetError makes every following Append fail with err. Pass nil to clear.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Rows returns the appended rows in order.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.rows...)
}

// IDs returns the expense ids appended so far, in order.
func (s *Store) IDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.ids...)
}
