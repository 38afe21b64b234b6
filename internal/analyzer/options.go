package analyzer

import "github.com/syncbase/ivmcore/internal/planner"

// RunOptions is spec §4.4 step 3's options table.
type RunOptions struct {
	// ApplyPermissions wraps sources with a permissions predicate before
	// vending, via the host's PermissionsDecorator.
	ApplyPermissions bool

	// SyncedRows collects sample rows emitted by the terminus.
	SyncedRows bool

	// ReadRows collects per-table read counts. VendedRows is the legacy
	// name for the same option; either enables the same counting.
	ReadRows   bool
	VendedRows bool

	// CostModel attaches the SQLite cost model to the planner this run
	// builds; required if PlanDebugger is set.
	CostModel *planner.CostModel

	// PlanDebugger captures plan events; requires CostModel.
	PlanDebugger bool
}
