// Package shutdown coordinates ordered teardown on process signals.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"screenveil/internal/logger"
)

const componentTimeout = 10 * time.Second

type Shutdownable interface {
	Shutdown()
}

// Manager shuts registered components down in reverse registration
// order, bounding each by componentTimeout so one stuck component
// cannot hang the process exit.
type Manager struct {
	mu         sync.Mutex
	components []Shutdownable
	log        logger.Logger
	done       chan struct{}
	once       sync.Once
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{
		log:  log,
		done: make(chan struct{}),
	}
}

func (m *Manager) Register(component Shutdownable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// Listen triggers Shutdown on SIGINT/SIGTERM.
func (m *Manager) Listen() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigChan
		m.log.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
		m.Shutdown()
	}()
}

func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	components := make([]Shutdownable, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	m.log.Info("ShutdownManager", "shutdown sequence initiated", map[string]interface{}{
		"components": len(components),
	})

	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			component.Shutdown()
		}()

		select {
		case <-finished:
		case <-time.After(componentTimeout):
			m.log.Warning("ShutdownManager", "component shutdown timeout", map[string]interface{}{
				"component_index": i,
			})
		}
	}

	close(m.done)
	m.log.Info("ShutdownManager", "shutdown sequence completed", nil)
}

// Done is closed once the shutdown sequence has completed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
