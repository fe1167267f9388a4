/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lifecycle

import (
	"errors"
	"sync/atomic"

	"github.com/quillpub/quill/internal/pkg/log"
)

var logger = log.New("lifecycle")

// ErrNotStarted indicates that an attempt was made to invoke a service that has not been started.
var ErrNotStarted = errors.New("service has not started")

// State is the state of a service.
type State = uint32

// Service states.
const (
	StateNotStarted State = 0
	StateStarting   State = 1
	StateStarted    State = 2
	StateStopped    State = 3
)

// Lifecycle implements the lifecycle of a service, i.e. Start and Stop.
type Lifecycle struct {
	name  string
	state uint32
	start func()
	stop  func()
}

// Opt sets a Lifecycle option.
type Opt func(lc *Lifecycle)

// WithStart sets the start function which is invoked when Start is called.
func WithStart(start func()) Opt {
	return func(lc *Lifecycle) {
		lc.start = start
	}
}

// WithStop sets the stop function which is invoked when Stop is called.
func WithStop(stop func()) Opt {
	return func(lc *Lifecycle) {
		lc.stop = stop
	}
}

// New returns a new Lifecycle.
func New(name string, opts ...Opt) *Lifecycle {
	lc := &Lifecycle{
		name:  name,
		start: func() {},
		stop:  func() {},
	}

	for _, opt := range opts {
		opt(lc)
	}

	return lc
}

// Start starts the service.
func (h *Lifecycle) Start() {
	if !atomic.CompareAndSwapUint32(&h.state, StateNotStarted, StateStarting) {
		logger.Debug("Service already started", log.WithServiceName(h.name))

		return
	}

	logger.Debug("Starting service ...", log.WithServiceName(h.name))

	h.start()

	logger.Debug("... service started", log.WithServiceName(h.name))

	atomic.StoreUint32(&h.state, StateStarted)
}

// Stop stops the service.
func (h *Lifecycle) Stop() {
	if !atomic.CompareAndSwapUint32(&h.state, StateStarted, StateStopped) {
		logger.Debug("Service already stopped", log.WithServiceName(h.name))

		return
	}

	logger.Debug("Stopping service ...", log.WithServiceName(h.name))

	h.stop()

	logger.Debug("... service stopped", log.WithServiceName(h.name))
}

// State returns the state of the service.
func (h *Lifecycle) State() State {
	return atomic.LoadUint32(&h.state)
}
