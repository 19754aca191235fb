package main

import (
	"os"
	"sync/atomic"

	"vire/internal/event"
	"vire/internal/logging"
)

// watchInterruptSignals turns the first signal into an interrupt event so the
// control loop quits through its normal path. Later signals are only logged.
func watchInterruptSignals(logger *logging.Logger, sink interface{ Put(event.Event) bool }, signalCh <-chan os.Signal) func() {
	if signalCh == nil || sink == nil {
		return func() {}
	}

	done := make(chan struct{})
	var interrupted atomic.Bool
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				name := ""
				if sig != nil {
					name = sig.String()
				}
				if interrupted.CompareAndSwap(false, true) {
					logger.Info("interrupt signal received", map[string]string{"signal": name})
					sink.Put(event.NewInterruptEvent(name))
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) {
					logger.Info("shutdown already in progress; ignoring signal", map[string]string{"signal": name})
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}
