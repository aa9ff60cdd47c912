package blob

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

type memObject struct {
	obj  Object
	data []byte
}

// Memory keeps blobs in process. Used by STORE_DRIVER=memory runs and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) Upload(ctx context.Context, name, contentType string, r io.Reader) (*Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	obj := Object{
		Ref:         uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	m.mu.Lock()
	m.objects[obj.Ref] = memObject{obj: obj, data: data}
	m.mu.Unlock()

	return &obj, nil
}

func (m *Memory) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[ref]
	return ok, nil
}

func (m *Memory) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	delete(m.objects, ref)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Open(ctx context.Context, ref string) (io.ReadCloser, *Object, error) {
	m.mu.RLock()
	o, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	obj := o.obj
	return io.NopCloser(bytes.NewReader(o.data)), &obj, nil
}

// Put stores data under a caller-chosen ref.
func (m *Memory) Put(ref string, data []byte) {
	m.mu.Lock()
	m.objects[ref] = memObject{obj: Object{Ref: ref, Size: int64(len(data))}, data: data}
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
