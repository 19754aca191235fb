// Package watcher registers fsnotify watches for a fixed set of files and
// reports modifications in coalesced batches.
//
// One goroutine owns the event loop. Every modification observed inside the
// coalescing window is delivered together as one Batch, so a save that
// touches several watched files produces a single callback. Watches lost to
// editors that replace files by rename are re-added when the path reappears;
// when it does not, the loss is logged and the remaining watches keep working.
package watcher
