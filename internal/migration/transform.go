package migration

import (
	"fmt"

	"github.com/roach88/carp/internal/wire"
)

// Rename moves field from to field to. Absent fields are left alone; an
// existing value under to is overwritten.
func Rename(from, to string) Transform {
	return func(obj wire.Object) (wire.Object, error) {
		v, ok := obj[from]
		if !ok {
			return obj, nil
		}
		delete(obj, from)
		obj[to] = v
		return obj, nil
	}
}

// Drop removes fields. Absent fields are ignored.
func Drop(fields ...string) Transform {
	return func(obj wire.Object) (wire.Object, error) {
		for _, f := range fields {
			delete(obj, f)
		}
		return obj, nil
	}
}

// Default sets field to v when the field is absent. Present values,
// including explicit nulls, are kept.
func Default(field string, v wire.Value) Transform {
	return func(obj wire.Object) (wire.Object, error) {
		if _, ok := obj[field]; !ok {
			obj[field] = wire.Clone(v)
		}
		return obj, nil
	}
}

// At applies t to the object stored under field.
// Absent and null fields are skipped.
func At(field string, t Transform) Transform {
	return func(obj wire.Object) (wire.Object, error) {
		raw, ok := obj[field]
		if !ok {
			return obj, nil
		}
		switch v := raw.(type) {
		case wire.Null:
			return obj, nil
		case wire.Object:
			out, err := t(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", field, err)
			}
			obj[field] = out
			return obj, nil
		default:
			return nil, fmt.Errorf("%s: expected object, got %s", field, wire.KindOf(raw))
		}
	}
}

// Each applies t to every object element of the array stored under field.
// Absent and null fields are skipped; non-object elements are an error.
func Each(field string, t Transform) Transform {
	return func(obj wire.Object) (wire.Object, error) {
		raw, ok := obj[field]
		if !ok {
			return obj, nil
		}
		switch v := raw.(type) {
		case wire.Null:
			return obj, nil
		case wire.Array:
			out, err := eachElement(v, t)
			if err != nil {
				return nil, fmt.Errorf("%s%w", field, err)
			}
			obj[field] = out
			return obj, nil
		default:
			return nil, fmt.Errorf("%s: expected array, got %s", field, wire.KindOf(raw))
		}
	}
}

// Chain composes transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(obj wire.Object) (wire.Object, error) {
		var err error
		for _, t := range ts {
			if obj, err = t(obj); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
}

// OnResponse lifts a Transform over object responses.
// Null responses pass through unchanged.
func OnResponse(t Transform) ResponseTransform {
	return func(v wire.Value) (wire.Value, error) {
		switch val := v.(type) {
		case wire.Null:
			return v, nil
		case wire.Object:
			return t(val)
		default:
			return nil, fmt.Errorf("response: expected object, got %s", wire.KindOf(v))
		}
	}
}

// ForEach lifts a Transform over every element of an array response.
// Null responses pass through unchanged.
func ForEach(t Transform) ResponseTransform {
	return func(v wire.Value) (wire.Value, error) {
		switch val := v.(type) {
		case wire.Null:
			return v, nil
		case wire.Array:
			out, err := eachElement(val, t)
			if err != nil {
				return nil, fmt.Errorf("response%w", err)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("response: expected array, got %s", wire.KindOf(v))
		}
	}
}

func eachElement(arr wire.Array, t Transform) (wire.Array, error) {
	for i, elem := range arr {
		obj, ok := elem.(wire.Object)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected object, got %s", i, wire.KindOf(elem))
		}
		out, err := t(obj)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr[i] = out
	}
	return arr, nil
}
