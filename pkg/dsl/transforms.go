package dsl

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// TransformFactory builds a transform from the args of a YAML node.
type TransformFactory func(args map[string]any) (domain.TransformFunc, error)

// Library maps transform names to factories. It is safe for concurrent use.
type Library struct {
	mu        sync.RWMutex
	factories map[string]TransformFactory
}

// NewLibrary returns a library holding the built-in transforms:
//
//	set        args {key, value}: stores value under key
//	copy       args {from, to}: copies a scratch value
//	delete     args {key}: removes a scratch key
//	append     args {role, content}: appends a message (role defaults to user)
//	capture    args {key}: stores the last assistant text under key
func NewLibrary() *Library {
	l := &Library{factories: make(map[string]TransformFactory)}
	l.Register("set", setTransform)
	l.Register("copy", copyTransform)
	l.Register("delete", deleteTransform)
	l.Register("append", appendTransform)
	l.Register("capture", captureTransform)
	return l
}

// Register adds or replaces a factory.
func (l *Library) Register(name string, factory TransformFactory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[name] = factory
}

// Names returns the registered names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.factories))
	for name := range l.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named transform.
func (l *Library) Build(name string, args map[string]any) (domain.TransformFunc, error) {
	l.mu.RLock()
	factory, ok := l.factories[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	fn, err := factory(args)
	if err != nil {
		return nil, fmt.Errorf("transform %q: %w", name, err)
	}
	return fn, nil
}

func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

func setTransform(args map[string]any) (domain.TransformFunc, error) {
	var a struct {
		Key   string `mapstructure:"key"`
		Value any    `mapstructure:"value"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, fmt.Errorf("missing key")
	}
	return func(s *domain.RunState) error {
		s.Set(a.Key, a.Value)
		return nil
	}, nil
}

func copyTransform(args map[string]any) (domain.TransformFunc, error) {
	var a struct {
		From string `mapstructure:"from"`
		To   string `mapstructure:"to"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.From == "" || a.To == "" {
		return nil, fmt.Errorf("copy needs from and to")
	}
	return func(s *domain.RunState) error {
		v, ok := s.Get(a.From)
		if !ok {
			return fmt.Errorf("scratch key %q is not set", a.From)
		}
		s.Set(a.To, v)
		return nil
	}, nil
}

func deleteTransform(args map[string]any) (domain.TransformFunc, error) {
	var a struct {
		Key string `mapstructure:"key"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return func(s *domain.RunState) error {
		delete(s.Scratch, a.Key)
		return nil
	}, nil
}

func appendTransform(args map[string]any) (domain.TransformFunc, error) {
	var a struct {
		Role    string `mapstructure:"role"`
		Content string `mapstructure:"content"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	role := domain.Role(a.Role)
	switch role {
	case "":
		role = domain.RoleUser
	case domain.RoleUser, domain.RoleSystem, domain.RoleAssistant:
	default:
		return nil, fmt.Errorf("unsupported role %q", a.Role)
	}
	return func(s *domain.RunState) error {
		s.Append(domain.Message{Role: role, Content: a.Content})
		return nil
	}, nil
}

func captureTransform(args map[string]any) (domain.TransformFunc, error) {
	var a struct {
		Key string `mapstructure:"key"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, fmt.Errorf("missing key")
	}
	return func(s *domain.RunState) error {
		s.Set(a.Key, s.LastAssistantText())
		return nil
	}, nil
}
