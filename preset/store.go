package preset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/iambic"
	"github.com/arloliu/cwkeyer/internal/hash"
)

// ParamStore persists named scalar parameters.
// Getters return errs.ErrParamNotFound for a key that was never set.
type ParamStore interface {
	Uint(ctx context.Context, key string) (uint32, error)
	SetUint(ctx context.Context, key string, v uint32) error
	Text(ctx context.Context, key string) (string, error)
	SetText(ctx context.Context, key string, v string) error
}

// KeyActive holds the active preset index.
const KeyActive = "preset.active"

// Key returns the parameter key of field in slot i, e.g. "preset.3.wpm".
func Key(i int, field string) string {
	return "preset." + strconv.Itoa(i) + "." + field
}

// Parameter field names.
const (
	FieldName        = "name"
	FieldWPM         = "wpm"
	FieldMode        = "mode"
	FieldMemory      = "memory"
	FieldSqueeze     = "squeeze"
	FieldWindowStart = "window_start"
	FieldWindowEnd   = "window_end"
)

// Save writes every slot and the active index to store.
func (b *Bank) Save(ctx context.Context, store ParamStore) error {
	all := b.All()

	for i, p := range all {
		c := p.Config
		if err := store.SetText(ctx, Key(i, FieldName), p.Name); err != nil {
			return fmt.Errorf("save preset %d: %w", i, err)
		}
		for _, f := range []struct {
			field string
			v     uint32
		}{
			{FieldWPM, c.WPM},
			{FieldMode, uint32(c.Mode)},
			{FieldMemory, uint32(MemoryModeOf(c))},
			{FieldSqueeze, uint32(c.Squeeze)},
			{FieldWindowStart, uint32(c.Window.StartPct)},
			{FieldWindowEnd, uint32(c.Window.EndPct)},
		} {
			if err := store.SetUint(ctx, Key(i, f.field), f.v); err != nil {
				return fmt.Errorf("save preset %d: %w", i, err)
			}
		}
	}

	return store.SetUint(ctx, KeyActive, uint32(b.ActiveIndex()))
}

// Restore loads every slot from store. Missing parameters keep the bank's current
// value; a restored preset that does not validate is rejected and the bank is left
// unchanged.
func (b *Bank) Restore(ctx context.Context, store ParamStore) error {
	all := b.All()

	for i := range all {
		p := &all[i]

		name, err := store.Text(ctx, Key(i, FieldName))
		switch {
		case err == nil:
			p.Name = name
		case !errors.Is(err, errs.ErrParamNotFound):
			return fmt.Errorf("restore preset %d: %w", i, err)
		}

		fields := []struct {
			field string
			set   func(uint32)
		}{
			{FieldWPM, func(v uint32) { p.Config.WPM = v }},
			{FieldMode, func(v uint32) { p.Config.Mode = iambic.Mode(v) }},
			{FieldMemory, func(v uint32) { MemoryMode(v).Apply(&p.Config) }},
			{FieldSqueeze, func(v uint32) { p.Config.Squeeze = iambic.SqueezeMode(v) }},
			{FieldWindowStart, func(v uint32) { p.Config.Window.StartPct = uint8(min(v, 255)) }},
			{FieldWindowEnd, func(v uint32) { p.Config.Window.EndPct = uint8(min(v, 255)) }},
		}
		for _, f := range fields {
			v, err := store.Uint(ctx, Key(i, f.field))
			if errors.Is(err, errs.ErrParamNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("restore preset %d: %w", i, err)
			}
			f.set(v)
		}

		if err := validateName(p.Name); err != nil {
			return fmt.Errorf("restore preset %d: %w", i, err)
		}
		if err := p.Config.Validate(); err != nil {
			return fmt.Errorf("restore preset %d: %w", i, err)
		}
	}

	active := b.ActiveIndex()
	v, err := store.Uint(ctx, KeyActive)
	switch {
	case err == nil:
		if err := checkIndex(int(v)); err != nil {
			return fmt.Errorf("restore active preset: %w", err)
		}
		active = int(v)
	case !errors.Is(err, errs.ErrParamNotFound):
		return fmt.Errorf("restore active preset: %w", err)
	}

	b.mu.Lock()
	b.presets = all
	b.mu.Unlock()
	b.active.Store(uint32(active))

	return nil
}

type memParam struct {
	key  string
	u    uint32
	s    string
	kind byte
}

// MemoryStore is an in-process ParamStore.
type MemoryStore struct {
	mu     sync.RWMutex
	params map[uint64]memParam
}

var _ ParamStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{params: make(map[uint64]memParam)}
}

func (m *MemoryStore) get(key string, kind byte) (memParam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.params[hash.ID(key)]
	if !ok || p.key != key || p.kind != kind {
		return memParam{}, fmt.Errorf("%w: %s", errs.ErrParamNotFound, key)
	}

	return p, nil
}

func (m *MemoryStore) set(p memParam) {
	m.mu.Lock()
	m.params[hash.ID(p.key)] = p
	m.mu.Unlock()
}

// Uint implements ParamStore.
func (m *MemoryStore) Uint(_ context.Context, key string) (uint32, error) {
	p, err := m.get(key, 'u')
	return p.u, err
}

// SetUint implements ParamStore.
func (m *MemoryStore) SetUint(_ context.Context, key string, v uint32) error {
	m.set(memParam{key: key, u: v, kind: 'u'})
	return nil
}

// Text implements ParamStore.
func (m *MemoryStore) Text(_ context.Context, key string) (string, error) {
	p, err := m.get(key, 's')
	return p.s, err
}

// SetText implements ParamStore.
func (m *MemoryStore) SetText(_ context.Context, key string, v string) error {
	m.set(memParam{key: key, s: v, kind: 's'})
	return nil
}

// Len returns the number of stored parameters.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.params)
}
