package database

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

const (
	idColumn        = "id"
	createdAtColumn = "created_at"
)

var (
	mapper = reflectx.NewMapper("db")

	ErrNotStructPtr = errors.New("record must be a non-nil pointer to a struct")
	ErrNotSlicePtr  = errors.New("destination must be a non-nil pointer to a slice of structs")
	ErrUnknownCol   = errors.New("unknown column")
	ErrEmptyFilter  = errors.New("refusing to delete without a filter")
)

// StructValue returns the addressable struct rec points to.
func StructValue(rec interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrNotStructPtr
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrNotStructPtr
	}
	return v, nil
}

// SliceValue returns the slice dest points to and the struct type of its elements.
func SliceValue(dest interface{}) (reflect.Value, reflect.Type, error) {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, nil, ErrNotSlicePtr
	}
	v = v.Elem()
	if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, ErrNotSlicePtr
	}
	return v, v.Type().Elem(), nil
}

// Columns lists the top level `db` columns of struct type t, in field order.
func Columns(t reflect.Type) []string {
	tm := mapper.TypeMap(t)
	cols := make([]string, 0, len(tm.Tree.Children))
	for _, fi := range tm.Tree.Children {
		if fi == nil || fi.Embedded || fi.Name == "" {
			continue
		}
		cols = append(cols, fi.Name)
	}
	return cols
}

// Field returns the field of struct v mapped to col.
func Field(v reflect.Value, col string) (reflect.Value, error) {
	fi, ok := mapper.TypeMap(v.Type()).Names[col]
	if !ok {
		return reflect.Value{}, errors.Wrapf(ErrUnknownCol, "%s.%s", v.Type().Name(), col)
	}
	return reflectx.FieldByIndexes(v, fi.Index), nil
}

// PrepareInsert fills an empty `id` with a new UUID and a zero `created_at` with now.
func PrepareInsert(rec interface{}, now time.Time) error {
	v, err := StructValue(rec)
	if err != nil {
		return err
	}
	id, err := Field(v, idColumn)
	if err != nil {
		return err
	}
	if id.Kind() != reflect.String {
		return fmt.Errorf("%s.id must be a string", v.Type().Name())
	}
	if id.String() == "" {
		id.SetString(uuid.New().String())
	}
	if created, err := Field(v, createdAtColumn); err == nil {
		if ts, ok := created.Interface().(time.Time); ok && ts.IsZero() {
			created.Set(reflect.ValueOf(now.UTC()))
		}
	}
	return nil
}

// RecordID returns the `id` of rec.
func RecordID(rec interface{}) string {
	v, err := StructValue(rec)
	if err != nil {
		return ""
	}
	id, err := Field(v, idColumn)
	if err != nil || id.Kind() != reflect.String {
		return ""
	}
	return id.String()
}

// CheckColumns makes sure every key can be used verbatim in a query.
func CheckColumns(t reflect.Type, keys ...string) error {
	names := mapper.TypeMap(t).Names
	for _, k := range keys {
		if !core.ValidIdentifier(k) {
			return fmt.Errorf("invalid column name %q", k)
		}
		if _, ok := names[k]; !ok {
			return errors.Wrapf(ErrUnknownCol, "%s.%s", t.Name(), k)
		}
	}
	return nil
}
