package expr

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateFunction is returned when a name is registered twice with
// different arities.
var ErrDuplicateFunction = errors.New("expr: function already registered")

// FunctionMap is the external-function registration table handed to the
// evaluator. Registering a name allows ExternalFun instructions to call it.
type FunctionMap struct {
	mu    sync.RWMutex
	arity map[string]int
}

// NewFunctionMap creates an empty function table.
func NewFunctionMap() *FunctionMap {
	return &FunctionMap{arity: make(map[string]int)}
}

// AddExternalFunction registers name with the given argument count.
// Registering the same name and arity again is a no-op.
func (fm *FunctionMap) AddExternalFunction(name string, arity int) error {
	if name == "" {
		return fmt.Errorf("expr: empty function name")
	}
	if arity < 1 {
		return fmt.Errorf("expr: function %q: arity %d must be positive", name, arity)
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if prev, ok := fm.arity[name]; ok && prev != arity {
		return fmt.Errorf("%w: %q has arity %d", ErrDuplicateFunction, name, prev)
	}
	fm.arity[name] = arity
	return nil
}

// Lookup returns the registered arity for name.
func (fm *FunctionMap) Lookup(name string) (int, bool) {
	if fm == nil {
		return 0, false
	}
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	n, ok := fm.arity[name]
	return n, ok
}

// Names returns the registered names in sorted order.
func (fm *FunctionMap) Names() []string {
	if fm == nil {
		return nil
	}
	fm.mu.RLock()
	names := make([]string, 0, len(fm.arity))
	for name := range fm.arity {
		names = append(names, name)
	}
	fm.mu.RUnlock()
	sort.Strings(names)
	return names
}
