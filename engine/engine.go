// Package engine is the stack-sync core: commit identity, forge
// snapshot, stack matching, push planning, PR reconciliation, and the
// merge driver. It is built against the narrow git.Interface and
// forge.Client capability surfaces, so it never branches on whether it
// is talking to real git/GitHub or their test doubles.
package engine

import (
	"github.com/ejoffe/profiletimer"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/output"
)

// Engine is the single entry point for the stack-sync operations
// (Update, Status, Merge). One is constructed per CLI invocation.
type Engine struct {
	Config  *config.Config
	Git     git.Interface
	Forge   forge.Client
	Printer output.Printer

	Profile profiletimer.Timer

	// Synchronized, when true, forces every worker-pool fan-out onto the
	// caller's goroutine so tests relying on ordered mock expectations
	// stay deterministic.
	Synchronized bool
}

// New constructs an Engine. profile may be profiletimer.StartNoopTimer()
// when --profile was not passed.
func New(cfg *config.Config, gitcmd git.Interface, forgeClient forge.Client, printer output.Printer, profile profiletimer.Timer) *Engine {
	return &Engine{
		Config:  cfg,
		Git:     gitcmd,
		Forge:   forgeClient,
		Printer: printer,
		Profile: profile,
	}
}

func (e *Engine) concurrency() int {
	return e.Config.User.Concurrency
}

// fanoutN returns the worker-pool bound to pass to workpool.Run,
// collapsing to serial execution whenever the engine was constructed in
// synchronized (test) mode.
func (e *Engine) fanoutN() int {
	if e.Synchronized {
		return 1
	}
	return e.concurrency()
}
