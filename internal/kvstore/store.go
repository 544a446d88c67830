// Package kvstore persists the handful of small values the portal keeps
// across reboots: the configured network name, the stand-alone flag and
// custom parameter values.
//
// Three implementations exist. Memory is used by tests and by the
// simulator, File keeps a YAML document next to the daemon configuration,
// and SQLite keeps a single key/value table in a WAL-mode database.
package kvstore

import (
	"strconv"
	"sync"
)

// Well-known keys.
const (
	KeyNetwork    = "network"
	KeyStandAlone = "stand_alone"

	// ParamPrefix prefixes the keys used for custom parameter values.
	ParamPrefix = "param."
)

// Store is a flat string-keyed store. Integer accessors are a convenience
// over the string representation; a missing or malformed integer reads as 0
// and a missing string reads as "".
type Store interface {
	GetInt(key string) int
	SetInt(key string, v int) error
	GetString(key string) string
	SetString(key, v string) error
	Delete(key string) error
	Keys() []string
	Close() error
}

// ParamKey returns the storage key for a custom parameter id.
func ParamKey(id string) string {
	return ParamPrefix + id
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) GetInt(key string) int {
	return atoi(m.GetString(key))
}

func (m *Memory) SetInt(key string, v int) error {
	return m.SetString(key, strconv.Itoa(v))
}

func (m *Memory) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

func (m *Memory) SetString(key, v string) error {
	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

func (m *Memory) Close() error { return nil }
