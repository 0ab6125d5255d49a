package sqlxdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database"
)

const uniqueViolation = "23505"

var NowFunc = time.Now // mockable

// Gateway is a core.Gateway over Postgres. Collections map to tables of the same name.
type Gateway struct {
	db *sqlx.DB
}

var _ core.Gateway = (*Gateway)(nil)

func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{db: sqlx.NewDb(db, "postgres")}
}

func (gw *Gateway) Insert(ctx context.Context, coll core.Collection, rec interface{}) error {
	if err := database.PrepareInsert(rec, NowFunc()); err != nil {
		return err
	}
	v, _ := database.StructValue(rec)
	q, err := insertQuery(coll, database.Columns(v.Type()))
	if err != nil {
		return err
	}
	if _, err = gw.db.NamedExecContext(ctx, q, rec); err != nil {
		return trapErr(err, "inserting into "+string(coll))
	}
	return nil
}

func (gw *Gateway) Get(ctx context.Context, coll core.Collection, dest interface{}, filter core.Filter) error {
	v, err := database.StructValue(dest)
	if err != nil {
		return err
	}
	q, args, err := selectQuery(coll, database.Columns(v.Type()), filter, nil)
	if err != nil {
		return err
	}
	if err = gw.db.GetContext(ctx, dest, q+" LIMIT 1", args...); err != nil {
		return trapErr(err, "getting from "+string(coll))
	}
	return nil
}

func (gw *Gateway) Select(ctx context.Context, coll core.Collection, dest interface{}, filter core.Filter, ordering ...core.DBOrdering) error {
	sv, typ, err := database.SliceValue(dest)
	if err != nil {
		return err
	}
	q, args, err := selectQuery(coll, database.Columns(typ), filter, ordering)
	if err != nil {
		return err
	}
	if err = gw.db.SelectContext(ctx, dest, q, args...); err != nil {
		return trapErr(err, "selecting from "+string(coll))
	}
	if sv.IsNil() {
		sv.Set(sv.Slice(0, 0))
	}
	return nil
}

func (gw *Gateway) Update(ctx context.Context, coll core.Collection, id string, patch core.Patch) error {
	q, args, err := updateQuery(coll, id, patch)
	if err != nil {
		return err
	}
	res, err := gw.db.ExecContext(ctx, q, args...)
	if err != nil {
		return trapErr(err, "updating "+string(coll))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating "+string(coll))
	}
	if n == 0 {
		return core.ErrNoRecord
	}
	return nil
}

func (gw *Gateway) Delete(ctx context.Context, coll core.Collection, filter core.Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, database.ErrEmptyFilter
	}
	where, args, err := whereClause(filter, 1)
	if err != nil {
		return 0, err
	}
	if !core.ValidIdentifier(string(coll)) {
		return 0, fmt.Errorf("invalid collection %q", coll)
	}
	res, err := gw.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", coll, where), args...)
	if err != nil {
		return 0, trapErr(err, "deleting from "+string(coll))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting from "+string(coll))
	}
	return n, nil
}

// trapErr maps driver errors to core.ErrNoRecord and core.ErrConflict, and wraps the rest.
func trapErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return core.ErrNoRecord
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return errors.Wrap(core.ErrConflict, pqErr.Constraint)
	}
	return errors.Wrap(err, msg)
}

func insertQuery(coll core.Collection, cols []string) (string, error) {
	if err := checkIdents(coll, cols...); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (:%s)",
		coll, strings.Join(cols, ", "), strings.Join(cols, ", :"),
	), nil
}

func selectQuery(coll core.Collection, cols []string, filter core.Filter, ordering []core.DBOrdering) (string, []interface{}, error) {
	if err := checkIdents(coll, cols...); err != nil {
		return "", nil, err
	}
	where, args, err := whereClause(filter, 1)
	if err != nil {
		return "", nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), coll, where)
	if len(ordering) > 0 {
		parts := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			if !core.ValidIdentifier(ord.Field) {
				return "", nil, fmt.Errorf("invalid ordering field %q", ord.Field)
			}
			parts = append(parts, ord.String())
		}
		q += " ORDER BY " + strings.Join(parts, ", ")
	}
	return q, args, nil
}

func updateQuery(coll core.Collection, id string, patch core.Patch) (string, []interface{}, error) {
	if len(patch) == 0 {
		return "", nil, errors.New("empty patch")
	}
	cols := make([]string, 0, len(patch))
	for col := range patch {
		if col == "id" {
			return "", nil, errors.New("id cannot be updated")
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	if err := checkIdents(coll, cols...); err != nil {
		return "", nil, err
	}

	sets := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, patch[col])
	}
	args = append(args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", coll, strings.Join(sets, ", "), len(args)), args, nil
}

// whereClause renders filter with positional binds starting at $start. Columns are sorted for stable SQL.
func whereClause(filter core.Filter, start int) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	cols := make([]string, 0, len(filter))
	for col := range filter {
		if !core.ValidIdentifier(col) {
			return "", nil, fmt.Errorf("invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	conds := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		val, cmp := filter[col], "="
		if op, ok := val.(core.Op); ok {
			val, cmp = op.Value, op.Cmp
			switch cmp {
			case "<", "<=", ">", ">=", "<>":
			default:
				return "", nil, fmt.Errorf("unknown comparison %q", cmp)
			}
		}
		if val == nil {
			if cmp == "<>" {
				conds = append(conds, col+" IS NOT NULL")
			} else {
				conds = append(conds, col+" IS NULL")
			}
			continue
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s %s $%d", col, cmp, start+len(args)-1))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func checkIdents(coll core.Collection, cols ...string) error {
	if !core.ValidIdentifier(string(coll)) {
		return fmt.Errorf("invalid collection %q", coll)
	}
	for _, col := range cols {
		if !core.ValidIdentifier(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
	}
	return nil
}
