// Package modules assembles the built-in module registry.
package modules

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/modules/collection"
	"github.com/openfroyo/nodeflow/pkg/modules/core"
	"github.com/openfroyo/nodeflow/pkg/modules/ui"
	"github.com/openfroyo/nodeflow/pkg/script"
)

// Options configures the built-in modules.
type Options struct {
	// Evaluator runs Expression nodes. Nil selects default sandbox limits.
	Evaluator *script.Evaluator
	Logger    *zerolog.Logger
}

// Load registers core, collection and ui and checks their dependencies.
func Load(opts Options) (*engine.Registry, error) {
	coreModule, err := core.New(core.Options{
		Evaluator: opts.Evaluator,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	collectionModule, err := collection.New()
	if err != nil {
		return nil, err
	}
	uiModule, err := ui.New()
	if err != nil {
		return nil, err
	}

	reg := engine.NewRegistry()
	for _, m := range []*engine.Module{coreModule, collectionModule, uiModule} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register built-in modules: %w", err)
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("built-in modules are inconsistent: %w", err)
	}
	return reg, nil
}

// Default returns the built-in registry with default options. It panics if the built-in modules
// fail to register, which only a broken build can cause.
func Default() *engine.Registry {
	reg, err := Load(Options{})
	if err != nil {
		panic(err)
	}
	return reg
}
