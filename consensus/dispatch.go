package consensus

import (
	"context"

	"dagbft/types"

	"github.com/pkg/errors"
)

// ErrCoreShuttingDown is returned by a ConsensusDispatch whose core thread
// has stopped or was never started. It is the only error that ends the
// leader timeout task.
var ErrCoreShuttingDown = errors.New("consensus core is shutting down")

// ConsensusDispatch is the only way into the consensus core. Implementations
// serialise every call onto the goroutine owning the core state, so callers
// never lock it. Returned refs are sorted and free of duplicates.
//
// A call that returns ctx.Err() had no effect on the core; it will not run
// later either.
type ConsensusDispatch interface {
	// AddBlocks hands verified blocks to the core and returns the ancestors
	// they reference that the core doesn't have yet.
	AddBlocks(ctx context.Context, blocks []*types.VerifiedBlock) ([]types.BlockRef, error)

	// ForceNewBlock makes the core propose for round even without the
	// round's leader block. No-op when the core already proposed for round
	// or moved past it.
	ForceNewBlock(ctx context.Context, round types.Round) error

	// GetMissingBlocks returns every referenced block the core lacks.
	GetMissingBlocks(ctx context.Context) ([]types.BlockRef, error)
}

// IsTerminalDispatchError reports whether err means the core is gone and no
// further dispatch call can succeed.
func IsTerminalDispatchError(err error) bool {
	return errors.Is(err, ErrCoreShuttingDown) || errors.Is(err, context.Canceled)
}
