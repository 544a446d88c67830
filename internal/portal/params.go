package portal

import (
	"sync"

	"github.com/muurk/wifiportal/internal/wifi"
)

// Parameter is an extra form field rendered on the configuration page. A
// parameter with an empty id is a custom HTML block with no input.
type Parameter struct {
	id          string
	placeholder string
	customHTML  string
	length      int

	mu    sync.RWMutex
	value []byte
}

// NewParameter declares an input field. The value buffer holds at most
// length bytes; longer values, including the default, are truncated.
func NewParameter(id, placeholder, defaultValue string, length int, customHTML string) *Parameter {
	if length < 0 {
		length = 0
	}
	p := &Parameter{
		id:          id,
		placeholder: placeholder,
		customHTML:  customHTML,
		length:      length,
		value:       make([]byte, 0, length),
	}
	p.SetValue(defaultValue)
	return p
}

// NewCustomParameter declares a raw HTML block.
func NewCustomParameter(html string) *Parameter {
	return &Parameter{customHTML: html}
}

func (p *Parameter) ID() string          { return p.id }
func (p *Parameter) Placeholder() string { return p.placeholder }
func (p *Parameter) CustomHTML() string  { return p.customHTML }
func (p *Parameter) Length() int         { return p.length }

// IsCustom reports whether the parameter is an HTML-only block.
func (p *Parameter) IsCustom() bool { return p.id == "" }

// Value returns the current value.
func (p *Parameter) Value() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return string(p.value)
}

// SetValue stores v truncated to the declared length.
func (p *Parameter) SetValue(v string) {
	if len(v) > p.length {
		v = v[:p.length]
	}
	p.mu.Lock()
	p.value = append(p.value[:0], v...)
	p.mu.Unlock()
}

// Registry is an ordered, bounded list of parameters.
type Registry struct {
	capacity int

	mu    sync.RWMutex
	items []*Parameter
}

// NewRegistry returns a registry holding at most capacity parameters.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultMaxParameters
	}
	return &Registry{capacity: capacity}
}

// Add appends p. When the registry is full p is rejected and a
// CapacityExceeded error is returned.
func (r *Registry) Add(p *Parameter) error {
	if p == nil {
		return wifi.NewInvalidConfigError("parameter", "nil parameter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= r.capacity {
		return wifi.NewCapacityError("add parameter", r.capacity)
	}
	r.items = append(r.items, p)
	return nil
}

// All returns the parameters in registration order.
func (r *Registry) All() []*Parameter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Parameter, len(r.items))
	copy(out, r.items)
	return out
}

// Get returns the input parameter with the given id.
func (r *Registry) Get(id string) (*Parameter, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.items {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) Capacity() int { return r.capacity }

// Apply copies submitted values into matching parameters. Parameters with
// no entry in values keep their current value.
func (r *Registry) Apply(values map[string]string) {
	for _, p := range r.All() {
		if p.IsCustom() {
			continue
		}
		if v, ok := values[p.id]; ok {
			p.SetValue(v)
		}
	}
}
