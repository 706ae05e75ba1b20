package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// InputBuilder constructs an InputAdapter from a name and raw config
// map taken straight out of YAML.
type InputBuilder func(name string, cfg map[string]any) (InputAdapter, error)

// OutputBuilder constructs an OutputAdapter from a name and raw config map.
type OutputBuilder func(name string, cfg map[string]any) (OutputAdapter, error)

// Factory mirrors adapters/factory.py's AdapterFactory: a registry of
// named implementation builders, consulted at config-load time.
// "disabled" is a reserved implementation name meaning "build
// nothing" rather than an error.
type Factory struct {
	mu      sync.Mutex
	inputs  map[string]InputBuilder
	outputs map[string]OutputBuilder
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		inputs:  make(map[string]InputBuilder),
		outputs: make(map[string]OutputBuilder),
	}
}

// RegisterInput binds an implementation name (e.g. "wakeword", "mock")
// to a builder. Re-registering a name overwrites the previous builder.
func (f *Factory) RegisterInput(implementation string, builder InputBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[implementation] = builder
}

// RegisterOutput binds an implementation name to a builder.
func (f *Factory) RegisterOutput(implementation string, builder OutputBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[implementation] = builder
}

// CreateInput builds the input adapter registered under implementation.
// Returns (nil, nil) when the implementation is "disabled". Any other
// unknown implementation is a fail-fast error, matching the original's
// RuntimeError-on-unknown-class behavior.
func (f *Factory) CreateInput(adapterType string, implementation string, cfg map[string]any) (InputAdapter, error) {
	if implementation == "disabled" {
		return nil, nil
	}

	f.mu.Lock()
	builder, ok := f.inputs[implementation]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown input implementation %q for adapter %q (available: %v)",
			implementation, adapterType, f.inputNames())
	}

	name := adapterType + "_" + implementation
	a, err := builder(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating input adapter %s/%s: %w", adapterType, implementation, err)
	}
	return a, nil
}

// CreateOutput is CreateInput's output-adapter counterpart.
func (f *Factory) CreateOutput(adapterType string, implementation string, cfg map[string]any) (OutputAdapter, error) {
	if implementation == "disabled" {
		return nil, nil
	}

	f.mu.Lock()
	builder, ok := f.outputs[implementation]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown output implementation %q for adapter %q (available: %v)",
			implementation, adapterType, f.outputNames())
	}

	name := adapterType + "_" + implementation
	a, err := builder(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating output adapter %s/%s: %w", adapterType, implementation, err)
	}
	return a, nil
}

func (f *Factory) inputNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.inputs))
	for n := range f.inputs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *Factory) outputNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.outputs))
	for n := range f.outputs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AdapterSpec is one entry of the adapters.input[] / adapters.output[]
// config lists: a logical type name plus which implementation and
// config to instantiate.
type AdapterSpec struct {
	Type           string
	Implementation string
	Config         map[string]any
}

// BuildAll constructs every InputAdapter/OutputAdapter named in the
// given specs and registers them on the Manager. Registration order
// follows spec order, which in turn governs Start/Stop ordering among
// adapters of the same direction.
func (f *Factory) BuildAll(mgr *Manager, inputs, outputs []AdapterSpec, logger core.Logger) error {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	for _, spec := range inputs {
		a, err := f.CreateInput(spec.Type, spec.Implementation, spec.Config)
		if err != nil {
			return err
		}
		if a == nil {
			logger.Info("input adapter disabled", "type", spec.Type)
			continue
		}
		mgr.RegisterInput(a)
	}
	for _, spec := range outputs {
		a, err := f.CreateOutput(spec.Type, spec.Implementation, spec.Config)
		if err != nil {
			return err
		}
		if a == nil {
			logger.Info("output adapter disabled", "type", spec.Type)
			continue
		}
		mgr.RegisterOutput(a)
	}
	return nil
}
