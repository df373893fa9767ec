// Package pos implements the point-of-sale operations on top of the local
// store: the product catalog, open tables with their orders and merges,
// checkout and the cash register.
//
// Every operation that touches more than one record runs inside a single
// store.Update call, so a snapshot taken by the sync layer never contains a
// half-applied checkout or move.
package pos

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
)

var (
	// ErrCategoryInUse is returned when deleting a category that products
	// still reference.
	ErrCategoryInUse = errors.New("category in use")

	// ErrTableBusy is returned when an operation would drop a table that has
	// open orders.
	ErrTableBusy = errors.New("table has open orders")

	// ErrDuplicate is returned when a category name is already taken.
	ErrDuplicate = errors.New("duplicate name")
)

// Service runs POS operations against one store.
type Service struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Service. A nil logger discards output.
func New(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  st,
		logger: logger.Named("pos"),
		now:    time.Now,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", schema.ErrValidation, fmt.Sprintf(format, args...))
}

