// framework.go - Framework-Registry und Verfuegbarkeits-Gate
//
// Dieses Modul enthaelt:
// - Framework: Interface zum Host-Framework (Executor + globale Defaults)
// - Register/Default: Thread-sichere globale Registry
// - Verfuegbarkeit wird einmal geprueft und gecacht; Einstiegspunkte
//   melden ErrFrameworkUnavailable statt erst beim Import zu scheitern.
package adapter

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/7blacky7/quantkit/graph"
)

// Executor runs a graph on one input batch and returns the output
// tensor of every live node, keyed by node ID.
type Executor interface {
	Run(g *graph.Graph, inputs []*graph.Tensor) (map[graph.NodeID]*graph.Tensor, error)
}

// Framework is the host-framework boundary: it supplies the executor
// used for calibration runs and configures any process-wide framework
// defaults the pipeline relies on.
type Framework interface {
	Name() string
	Executor() Executor
	// ApplyDefaults configures global framework defaults. Called once
	// at the start of every public entry point, never implicitly.
	ApplyDefaults()
}

// ErrFrameworkUnavailable wird gemeldet, wenn kein Host-Framework
// registriert ist.
var ErrFrameworkUnavailable = errors.New("adapter: no host framework registered")

var (
	mu         sync.RWMutex
	frameworks = make(map[string]Framework)
	defaultFw  string
)

// Register registers a framework. The first registered framework
// becomes the default.
func Register(fw Framework) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := frameworks[fw.Name()]; ok {
		panic("adapter: framework already registered: " + fw.Name())
	}
	frameworks[fw.Name()] = fw
	if defaultFw == "" {
		defaultFw = fw.Name()
	}
}

// Available reports whether any host framework is registered. The
// check is cheap and safe to call on every entry point.
func Available() bool {
	mu.RLock()
	defer mu.RUnlock()
	return defaultFw != ""
}

// Default returns the default framework, or ErrFrameworkUnavailable.
func Default() (Framework, error) {
	mu.RLock()
	defer mu.RUnlock()
	if defaultFw == "" {
		return nil, ErrFrameworkUnavailable
	}
	return frameworks[defaultFw], nil
}

// Setup resolves the default framework and applies its global
// defaults. Explicit initialization step for the public entry points.
func Setup() (Framework, error) {
	fw, err := Default()
	if err != nil {
		return nil, err
	}
	fw.ApplyDefaults()
	slog.Debug("framework initialized", "framework", fw.Name())
	return fw, nil
}
