package entity

import (
	"reflect"
	"sync"

	"github.com/koustreak/relmap/internal/errs"
)

// Declarer is implemented by record types that describe their own mapping.
// Of calls DeclareEntity at most once per type.
type Declarer[T any] interface {
	DeclareEntity() (*Metadata[T], error)
}

type slot struct {
	once sync.Once
	meta any
	err  error
}

// registry maps reflect.Type to *slot; entries are never removed.
var registry sync.Map

// Register stores m as the metadata for T. Registering a type twice is a
// configuration error.
func Register[T any](m *Metadata[T]) error {
	s := &slot{meta: m}
	s.once.Do(func() {})
	if _, loaded := registry.LoadOrStore(reflect.TypeFor[T](), s); loaded {
		return errs.Newf(errs.ErrKindConfiguration, "entity %s is already registered", reflect.TypeFor[T]())
	}
	return nil
}

// Of returns the metadata for T, building it on first use from T's
// DeclareEntity method when it was not registered explicitly.
func Of[T any]() (*Metadata[T], error) {
	typ := reflect.TypeFor[T]()
	v, _ := registry.LoadOrStore(typ, &slot{})
	s := v.(*slot)
	s.once.Do(func() {
		s.meta, s.err = declare[T]()
	})
	if s.err != nil {
		registry.CompareAndDelete(typ, s)
		return nil, s.err
	}
	return s.meta.(*Metadata[T]), nil
}

func declare[T any]() (*Metadata[T], error) {
	var zero T
	if d, ok := any(zero).(Declarer[T]); ok {
		return d.DeclareEntity()
	}
	if d, ok := any(&zero).(Declarer[T]); ok {
		return d.DeclareEntity()
	}
	return nil, errs.Newf(errs.ErrKindConfiguration,
		"entity %s is not registered and does not implement DeclareEntity", reflect.TypeFor[T]())
}
