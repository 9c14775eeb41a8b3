package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of the process-wide model.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrAlreadyLoaded = errors.New("model lifecycle already started")

// LoadFunc produces the model. It runs exactly once per Lifecycle.
type LoadFunc func(ctx context.Context) (*Model, error)

type snapshot struct {
	state State
	model *Model
	err   error
}

// Lifecycle moves UNLOADED -> LOADING -> READY|FAILED exactly once. Readers
// see an immutable snapshot through an atomic pointer, so no locking is
// needed on the request path.
type Lifecycle struct {
	once    sync.Once
	current atomic.Pointer[snapshot]
}

func NewLifecycle() *Lifecycle {
	l := &Lifecycle{}
	l.current.Store(&snapshot{state: StateUnloaded})
	return l
}

// Load runs load and publishes the outcome. A second call returns
// ErrAlreadyLoaded and leaves the state untouched.
func (l *Lifecycle) Load(ctx context.Context, load LoadFunc) error {
	err := ErrAlreadyLoaded
	l.once.Do(func() {
		l.current.Store(&snapshot{state: StateLoading})
		m, loadErr := load(ctx)
		if loadErr == nil && m == nil {
			loadErr = errors.New("loader returned no model")
		}
		if loadErr != nil {
			l.current.Store(&snapshot{state: StateFailed, err: loadErr})
			err = loadErr
			return
		}
		l.current.Store(&snapshot{state: StateReady, model: m})
		err = nil
	})
	return err
}

func (l *Lifecycle) State() State {
	return l.current.Load().state
}

// Err is the load failure, if the lifecycle ended in StateFailed.
func (l *Lifecycle) Err() error {
	return l.current.Load().err
}

// Model returns the ready model or ErrModelUnavailable.
func (l *Lifecycle) Model() (*Model, error) {
	s := l.current.Load()
	if s.state != StateReady {
		return nil, ErrModelUnavailable
	}
	return s.model, nil
}
