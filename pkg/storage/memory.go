package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
)

type memoryObject struct {
	data    []byte
	version int64
	mtime   int64
}

// InMemory is a Backend implementation over a process-local map. It is the
// reference implementation used by the package tests and gives the
// linearizable conditional-write guarantee the engine's optimistic
// concurrency protocol (pkg/concurrency) depends on.
type InMemory struct {
	mu      sync.Mutex
	objects map[string]*memoryObject
}

// NewInMemory returns an empty in-memory backend.
func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]*memoryObject)}
}

func (m *InMemory) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, errs.NewNotFound(path)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (m *InMemory) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(path, data)
	return nil
}

func (m *InMemory) put(path string, data []byte) *memoryObject {
	obj, ok := m.objects[path]
	if !ok {
		obj = &memoryObject{}
		m.objects[path] = obj
	}
	obj.data = append([]byte(nil), data...)
	obj.version++
	obj.mtime = time.Now().UnixMilli()
	return obj
}

func (m *InMemory) WriteConditional(_ context.Context, path string, data []byte, expectedVersion *string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, exists := m.objects[path]
	if expectedVersion == nil {
		if exists {
			return "", errs.NewStorage("writeConditional", path, &errs.VersionMismatchError{Path: path, Expected: "<absent>"})
		}
	} else {
		if !exists {
			return "", errs.NewStorage("writeConditional", path, &errs.VersionMismatchError{Path: path, Expected: *expectedVersion})
		}
		cur := strconv.FormatInt(obj.version, 10)
		if cur != *expectedVersion {
			return "", &errs.VersionMismatchError{Path: path, Expected: *expectedVersion}
		}
	}

	newObj := m.put(path, data)
	return strconv.FormatInt(newObj.version, 10), nil
}

func (m *InMemory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *InMemory) Stat(_ context.Context, path string) (*Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, nil
	}
	return &Stat{
		Size:         int64(len(obj.data)),
		LastModified: obj.mtime,
		ETag:         strconv.FormatInt(obj.version, 10),
	}, nil
}

func (m *InMemory) ReadRange(_ context.Context, path string, offset, length int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, errs.NewNotFound(path)
	}
	end := offset + length
	if end > int64(len(obj.data)) {
		end = int64(len(obj.data))
	}
	if offset > int64(len(obj.data)) {
		offset = int64(len(obj.data))
	}
	out := make([]byte, end-offset)
	copy(out, obj.data[offset:end])
	return out, nil
}

func (m *InMemory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *InMemory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

// SetLastModified backdates an object's modification time for testing
// retention-window logic in pkg/vacuum.
func (m *InMemory) SetLastModified(path string, ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[path]; ok {
		obj.mtime = ms
	}
}
