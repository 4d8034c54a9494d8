package domain

import (
	"context"
	"time"

	"github.com/rwdlab/rwdsim/internal/shared/types"
)

// Run is the persisted record of one finished simulation.
type Run struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	// Seed is the effective seed the run used. Recorded even when the
	// parameters left it to the clock, so any run can be replayed.
	Seed int64 `json:"seed"`

	// Cycles is how many abstraction cycles the run took to converge.
	Cycles int `json:"cycles"`

	// FullyAbstracted reports whether every occurred event ended up
	// abstracted. False means the run hit a boundary case, not an error.
	FullyAbstracted bool `json:"fully_abstracted"`

	Params *SimParams `json:"params"`

	// Violations are consistency findings from the post-run audit.
	Violations []string `json:"violations"`
}

// Repository stores finished runs and their output tables.
type Repository interface {
	SaveRun(ctx context.Context, run *Run, table Table) error
	GetRun(ctx context.Context, id types.ID) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	GetTable(ctx context.Context, id types.ID) (Table, error)
}
