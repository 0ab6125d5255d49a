package inmemdb

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// clone returns an addressable deep copy of v. Unexported fields are copied shallowly.
func clone(v reflect.Value) reflect.Value {
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	deepen(cp)
	return cp
}

func deepen(v reflect.Value) {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return
		}
		m := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m.SetMapIndex(iter.Key(), clone(iter.Value()))
		}
		v.Set(m)
	case reflect.Slice:
		if v.IsNil() {
			return
		}
		s := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(s, v)
		for i := 0; i < s.Len(); i++ {
			deepen(s.Index(i))
		}
		v.Set(s)
	case reflect.Ptr:
		if v.IsNil() {
			return
		}
		v.Set(clone(v.Elem()).Addr())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue
			}
			deepen(v.Field(i))
		}
	}
}

// normalize reduces x to nil, float64, string, bool, time.Time or []byte where possible.
func normalize(x interface{}) interface{} {
	if x == nil {
		return nil
	}
	if vlr, ok := x.(driver.Valuer); ok {
		val, err := vlr.Value()
		if err != nil {
			return x
		}
		x = val
		if x == nil {
			return nil
		}
	}
	if t, ok := x.(time.Time); ok {
		return t
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	}
	return x
}

// compare orders a and b. ok is false when they cannot be ordered against each other.
func compare(a, b interface{}) (c int, ok bool) {
	a, b = normalize(a), normalize(b)
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			}
			return 0, true
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1, true
			case av.After(bv):
				return 1, true
			}
			return 0, true
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), true
		}
	}
	return 0, false
}

func compareWith(cmp string, a, b interface{}) (bool, error) {
	c, ok := compare(a, b)
	switch cmp {
	case "=":
		if !ok {
			return reflect.DeepEqual(a, b), nil
		}
		return c == 0, nil
	case "<>":
		if !ok {
			return !reflect.DeepEqual(a, b), nil
		}
		return c != 0, nil
	}

	if !ok {
		return false, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch cmp {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown comparison %q", cmp)
}

func sameKindFamily(a, b reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return 1
		case reflect.String:
			return 2
		case reflect.Bool:
			return 3
		}
		return 0
	}
	fa := family(a)
	return fa != 0 && fa == family(b)
}
