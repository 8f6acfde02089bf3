// ABOUTME: Process-wide fault observer for goroutines that own external state
// ABOUTME: Runs registered release hooks before a panic is allowed to surface
package fault

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	nextID int
	hooks  = map[int]func(){}
)

// OnFault registers fn to run when any observed goroutine panics. The returned
// function unregisters it. Hooks must be idempotent: they can run more than once
// if several goroutines fault, and also alongside a normal release.
func OnFault(fn func()) (unregister func()) {
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	hooks[id] = fn
	return func() {
		mu.Lock()
		defer mu.Unlock()
		delete(hooks, id)
	}
}

// Observe must be deferred directly at the top of every long-lived goroutine.
// On panic it runs the registered hooks and then re-panics with the original value.
func Observe() {
	if r := recover(); r != nil {
		logrus.Errorf("panic: %v", r)
		Release()
		panic(r)
	}
}

// Release runs every registered hook once, in no particular order
func Release() {
	mu.Lock()
	fns := make([]func(), 0, len(hooks))
	for _, fn := range hooks {
		fns = append(fns, fn)
	}
	mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("fault hook panicked: %v", r)
				}
			}()
			fn()
		}()
	}
}
