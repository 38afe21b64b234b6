package analyzer

import (
	"time"

	"github.com/syncbase/ivmcore/internal/operator"
	"github.com/syncbase/ivmcore/internal/planner"
)

// Result is spec §4.4's AnalyzeQueryResult: round-trippable, with legacy
// fields retained verbatim alongside their replacements so old consumers
// keep working.
type Result struct {
	Warnings       []string                   `json:"warnings"`
	SyncedRowCount int                        `json:"syncedRowCount"`
	SyncedRows     []operator.MaterializedRow `json:"syncedRows,omitempty"`

	Start   time.Time     `json:"start"`
	Elapsed time.Duration `json:"elapsed"`

	// ReadRowCountsByQuery keys by table, then by the exact compiled SQL
	// text the connection ran, so two different shapes of query against the
	// same table (e.g. one filtered, one not) are counted separately.
	ReadRowCountsByQuery map[string]map[string]int `json:"readRowCountsByQuery,omitempty"`
	ReadRowCount         int                        `json:"readRowCount,omitempty"`

	SqlitePlans map[string]string   `json:"sqlitePlans,omitempty"`
	JoinPlans   []planner.DebugEvent `json:"joinPlans,omitempty"`

	// Legacy fields (spec §4.4 "Result shape"): deliberately retained,
	// not to be removed without a product decision.
	VendedRowCounts map[string]int `json:"vendedRowCounts,omitempty"`
	End             time.Time      `json:"end"`
}
