// Package logging provides the engine's shared structured logger.
//
// The teacher repo has no logging story; this follows the pack's pattern of
// a package-level sugared zap logger (e.g. the zap.S() calls threaded
// through the optimizer decision points in the query-optimizer example),
// so operators, the planner and the mutation tracker all log through one
// configured sink instead of ad hoc fmt.Println calls.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	log = l.Sugar()
}

// L returns the current process-wide sugared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger overrides the process-wide logger, e.g. with a development
// logger in tests or a configured one at startup.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l.Sugar()
}

// Named returns a child logger scoped to a subsystem name.
func Named(name string) *zap.SugaredLogger {
	return L().Named(name)
}
