package operator

import (
	"sync"

	apperrors "github.com/jae-editor/operate/errors"
)

// Factory builds an operator from its spec, validating the options.
type Factory func(spec Spec) (Operator, error)

// Registry maps kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry returns a registry with every built-in kind registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Kind]Factory)}
	r.Register(KindLines, newLines)
	r.Register(KindTable, newTable)
	r.Register(KindKV, newKV)
	r.Register(KindFrames, newFrames)
	r.Register(KindFilter, newFilter)
	r.Register(KindMap, newMap)
	r.Register(KindAggregate, newAggregate)
	r.Register(KindSort, newSort)
	r.Register(KindDedup, newDedup)
	r.Register(KindExternal, newExternal)
	r.Register(KindRender, newRender)
	return r
}

// Register installs or replaces the factory for kind.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Build constructs one operator.
func (r *Registry) Build(spec Spec) (Operator, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.UnknownOperator(string(spec.Kind))
	}
	if spec.Options == nil {
		spec.Options = map[string]any{}
	}
	return f(spec)
}

// BuildAll constructs a pipeline. The first invalid stage fails the whole
// list, with the error attributed to its index.
func (r *Registry) BuildAll(specs []Spec) ([]Operator, error) {
	ops := make([]Operator, len(specs))
	for i, spec := range specs {
		op, err := r.Build(spec)
		if err != nil {
			if appErr, ok := apperrors.AsAppError(err); ok {
				return nil, appErr.WithStage(i, spec.Label())
			}
			return nil, apperrors.ConfigValidation(spec.Label(), err.Error()).WithStage(i, spec.Label())
		}
		ops[i] = op
	}
	return ops, nil
}

var defaultRegistry = NewRegistry()

// Build constructs one operator with the built-in registry.
func Build(spec Spec) (Operator, error) { return defaultRegistry.Build(spec) }

// BuildAll constructs a pipeline with the built-in registry.
func BuildAll(specs []Spec) ([]Operator, error) { return defaultRegistry.BuildAll(specs) }
