// Package panics provides goroutine-level panic recovery and graceful
// shutdown helpers shared by every long-running component in this
// module (the sync loop, the HTTP query server, the daemon's main
// goroutine).
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/daglabs/sidetree-anchor-engine/logs"
)

// HandlePanic recovers a panic, logs it along with both the recovering
// goroutine's stack trace and (if supplied) the spawning goroutine's
// stack trace, runs cleanup (in order, logging but not aborting on
// individual failures — e.g. durably closing the transaction log/quantile
// store before the process dies), then exits. Call it via defer at the
// top of any goroutine that must not be allowed to crash the process
// silently: the sync loop, the HTTP query server, the daemon's main
// goroutine.
func HandlePanic(log *logs.Logger, spawningGoroutineStackTrace []byte, cleanup ...func() error) {
	err := recover()
	if err == nil {
		return
	}

	panicHandlerDone := make(chan struct{})
	go func() {
		log.Criticalf("Fatal error: %+v", err)
		if spawningGoroutineStackTrace != nil {
			log.Criticalf("Spawning goroutine stack trace: %s", spawningGoroutineStackTrace)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
		runCleanup(log, cleanup)
		log.Backend().Close()
		close(panicHandlerDone)
	}()

	const panicHandlerTimeout = 5 * time.Second
	select {
	case <-time.After(panicHandlerTimeout):
		fmt.Fprintln(os.Stderr, "Couldn't handle a fatal error. Exiting...")
	case <-panicHandlerDone:
	}
	log.Criticalf("Exiting")
	os.Exit(1)
}

// runCleanup invokes each cleanup func, logging (but not aborting on) any
// failure — a best-effort attempt to leave the persisted transaction log
// and quantile store in as sound a state as possible before the process
// exits uncleanly.
func runCleanup(log *logs.Logger, cleanup []func() error) {
	for _, fn := range cleanup {
		if fn == nil {
			continue
		}
		if err := fn(); err != nil {
			log.Errorf("cleanup failed during shutdown: %s", err)
		}
	}
}

// GoroutineWrapperFunc returns a function that spawns its argument in a
// new goroutine, guarded by HandlePanic with the calling goroutine's
// stack trace captured for context.
func GoroutineWrapperFunc(log *logs.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc returns a time.AfterFunc wrapper that guards the
// deferred function with HandlePanic.
func AfterFuncWrapperFunc(log *logs.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		stackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, stackTrace)
			f()
		})
	}
}

// Exit logs reason, runs cleanup, waits for the log to flush, and exits
// the process. Used by the daemon when the sync engine enters the Halted
// state (spec §7: a persistence failure during rollback is not retriable
// and requires external restart) — cleanup is the caller's chance to
// durably close the store out from under the halted engine before the
// process dies, since Exit bypasses any deferred close in main().
func Exit(log *logs.Logger, reason string, cleanup ...func() error) {
	exitHandlerDone := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		runCleanup(log, cleanup)
		log.Backend().Close()
		close(exitHandlerDone)
	}()

	const exitHandlerTimeout = 5 * time.Second
	select {
	case <-time.After(exitHandlerTimeout):
		fmt.Fprintln(os.Stderr, "Couldn't exit gracefully.")
	case <-exitHandlerDone:
	}
	os.Exit(1)
}
