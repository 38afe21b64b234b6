package source

import (
	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// Handle adapts a *TableSource to the planner's SourceHandle contract: its
// only job is widening Connect's concrete *Connection return to the
// fetch.Input interface the operator graph is built from, since a Go
// method can't satisfy an interface by returning a different concrete
// type. This is the planner's "identity decorator" for the common case;
// the analyzer wraps Handle further to add read-row counting.
type Handle struct {
	*TableSource
}

// Connect forwards to TableSource.Connect, widening the result to
// fetch.Input.
func (h Handle) Connect(sort row.Ordering, filters ast.Condition, splitEditKeys map[string]bool, debug bool) (fetch.Input, error) {
	return h.TableSource.Connect(sort, filters, splitEditKeys, debug)
}
