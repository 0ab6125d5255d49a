package inmemdb

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database"
)

var NowFunc = time.Now // mockable

// DefaultUniqueKeys mirrors the unique indexes created by the SQL migrations.
var DefaultUniqueKeys = map[core.Collection][][]string{
	core.CollUsers:               {{"email"}},
	core.CollEnrollments:         {{"course_id", "student_id"}},
	core.CollQuizSubmissions:     {{"quiz_id", "student_id"}},
	core.CollPaymentTransactions: {{"payment_reference"}},
}

type table struct {
	typ  reflect.Type
	rows []reflect.Value // struct values
}

// Gateway is an in-memory core.Gateway. Records are deep copied in and out.
type Gateway struct {
	mutex  sync.RWMutex
	tables map[core.Collection]*table
	unique map[core.Collection][][]string
}

var _ core.Gateway = (*Gateway)(nil)

// NewGateway returns an empty Gateway enforcing DefaultUniqueKeys, or the given keys if any.
func NewGateway(uniqueKeys ...map[core.Collection][][]string) *Gateway {
	unique := DefaultUniqueKeys
	if len(uniqueKeys) > 0 {
		unique = uniqueKeys[0]
	}
	return &Gateway{
		tables: make(map[core.Collection]*table),
		unique: unique,
	}
}

// Reset drops every record.
func (gw *Gateway) Reset() {
	gw.mutex.Lock()
	defer gw.mutex.Unlock()
	gw.tables = make(map[core.Collection]*table)
}

func (gw *Gateway) table(coll core.Collection, typ reflect.Type, create bool) (*table, error) {
	tbl, ok := gw.tables[coll]
	if !ok {
		if !create {
			return nil, nil
		}
		tbl = &table{typ: typ}
		gw.tables[coll] = tbl
	}
	if tbl.typ != typ {
		return nil, fmt.Errorf("collection %s holds %s records, got %s", coll, tbl.typ, typ)
	}
	return tbl, nil
}

func (gw *Gateway) Insert(ctx context.Context, coll core.Collection, rec interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := database.PrepareInsert(rec, NowFunc()); err != nil {
		return err
	}
	v, _ := database.StructValue(rec)

	gw.mutex.Lock()
	defer gw.mutex.Unlock()

	tbl, err := gw.table(coll, v.Type(), true)
	if err != nil {
		return err
	}
	if err = gw.checkUnique(coll, tbl, v, -1); err != nil {
		return err
	}
	tbl.rows = append(tbl.rows, clone(v))
	return nil
}

func (gw *Gateway) Get(ctx context.Context, coll core.Collection, dest interface{}, filter core.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := database.StructValue(dest)
	if err != nil {
		return err
	}

	gw.mutex.RLock()
	defer gw.mutex.RUnlock()

	tbl, err := gw.table(coll, v.Type(), false)
	if err != nil {
		return err
	}
	if tbl == nil {
		return core.ErrNoRecord
	}
	for _, row := range tbl.rows {
		ok, err := matches(row, filter)
		if err != nil {
			return err
		}
		if ok {
			v.Set(clone(row))
			return nil
		}
	}
	return core.ErrNoRecord
}

func (gw *Gateway) Select(ctx context.Context, coll core.Collection, dest interface{}, filter core.Filter, ordering ...core.DBOrdering) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sv, typ, err := database.SliceValue(dest)
	if err != nil {
		return err
	}

	gw.mutex.RLock()
	defer gw.mutex.RUnlock()

	tbl, err := gw.table(coll, typ, false)
	if err != nil {
		return err
	}
	res := reflect.MakeSlice(sv.Type(), 0, 0)
	if tbl != nil {
		for _, row := range tbl.rows {
			ok, err := matches(row, filter)
			if err != nil {
				return err
			}
			if ok {
				res = reflect.Append(res, clone(row))
			}
		}
	}
	if err = sortRows(res, ordering); err != nil {
		return err
	}
	sv.Set(res)
	return nil
}

func (gw *Gateway) Update(ctx context.Context, coll core.Collection, id string, patch core.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gw.mutex.Lock()
	defer gw.mutex.Unlock()

	tbl, ok := gw.tables[coll]
	if !ok {
		return core.ErrNoRecord
	}
	for i, row := range tbl.rows {
		rowID, _ := database.Field(row, "id")
		if rowID.String() != id {
			continue
		}
		updated := clone(row)
		for col, val := range patch {
			if col == "id" {
				return errors.New("id cannot be updated")
			}
			if err := assign(updated, col, val); err != nil {
				return err
			}
		}
		if err := gw.checkUnique(coll, tbl, updated, i); err != nil {
			return err
		}
		tbl.rows[i] = updated
		return nil
	}
	return core.ErrNoRecord
}

func (gw *Gateway) Delete(ctx context.Context, coll core.Collection, filter core.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, database.ErrEmptyFilter
	}

	gw.mutex.Lock()
	defer gw.mutex.Unlock()

	tbl, ok := gw.tables[coll]
	if !ok {
		return 0, nil
	}
	kept := tbl.rows[:0]
	var n int64
	for _, row := range tbl.rows {
		ok, err := matches(row, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, row)
	}
	tbl.rows = kept
	return n, nil
}

// checkUnique returns core.ErrConflict if v collides with any row but the one at skip.
func (gw *Gateway) checkUnique(coll core.Collection, tbl *table, v reflect.Value, skip int) error {
	keys := append([][]string{{"id"}}, gw.unique[coll]...)
	for _, key := range keys {
		filter := make(core.Filter, len(key))
		for _, col := range key {
			fv, err := database.Field(v, col)
			if err != nil {
				return err
			}
			filter[col] = fv.Interface()
		}
		for i, row := range tbl.rows {
			if i == skip {
				continue
			}
			ok, err := matches(row, filter)
			if err != nil {
				return err
			}
			if ok {
				return errors.Wrapf(core.ErrConflict, "%s(%s)", coll, strings.Join(key, ", "))
			}
		}
	}
	return nil
}

func matches(row reflect.Value, filter core.Filter) (bool, error) {
	for col, want := range filter {
		fv, err := database.Field(row, col)
		if err != nil {
			return false, err
		}
		cmp := "="
		if op, ok := want.(core.Op); ok {
			cmp, want = op.Cmp, op.Value
		}
		ok, err := compareWith(cmp, fv.Interface(), want)
		if err != nil {
			return false, errors.Wrapf(err, "filtering on %s", col)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func sortRows(rows reflect.Value, ordering []core.DBOrdering) error {
	if len(ordering) == 0 || rows.Len() < 2 {
		return nil
	}
	for _, ord := range ordering {
		if _, err := database.Field(rows.Index(0), ord.Field); err != nil {
			return err
		}
	}
	sort.SliceStable(rows.Interface(), func(i, j int) bool {
		for _, ord := range ordering {
			a, _ := database.Field(rows.Index(i), ord.Field)
			b, _ := database.Field(rows.Index(j), ord.Field)
			c, ok := compare(a.Interface(), b.Interface())
			if !ok || c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return nil
}

func assign(row reflect.Value, col string, val interface{}) error {
	fv, err := database.Field(row, col)
	if err != nil {
		return err
	}
	if val == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(fv.Type()):
		fv.Set(clone(rv))
	case sameKindFamily(rv.Kind(), fv.Kind()):
		fv.Set(rv.Convert(fv.Type()))
	default:
		return fmt.Errorf("cannot assign %s to column %s of type %s", rv.Type(), col, fv.Type())
	}
	return nil
}
