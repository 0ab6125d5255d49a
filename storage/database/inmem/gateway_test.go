package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

type testRecord struct {
	ID        string            `db:"id"`
	CourseID  string            `db:"course_id"`
	StudentID string            `db:"student_id"`
	Progress  float64           `db:"progress"`
	Limit     null.Int          `db:"time_limit"`
	Tags      map[string]string `db:"tags"`
	CreatedAt time.Time         `db:"created_at"`
}

const coll = core.CollEnrollments

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })
	return NewGateway()
}

func TestGateway_Insert(t *testing.T) {
	ctx := context.Background()
	gw := newGateway(t)

	rec := testRecord{CourseID: "c1", StudentID: "s1"}
	require.NoError(t, gw.Insert(ctx, coll, &rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, NowFunc(), rec.CreatedAt)

	dup := testRecord{CourseID: "c1", StudentID: "s1"}
	err := gw.Insert(ctx, coll, &dup)
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	sameID := testRecord{ID: rec.ID, CourseID: "c2", StudentID: "s1"}
	err = gw.Insert(ctx, coll, &sameID)
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	other := testRecord{CourseID: "c2", StudentID: "s1"}
	assert.NoError(t, gw.Insert(ctx, coll, &other))

	assert.Error(t, gw.Insert(ctx, coll, rec), "non-pointer record")
}

func TestGateway_GetSelect(t *testing.T) {
	ctx := context.Background()
	gw := newGateway(t)

	recs := []testRecord{
		{CourseID: "c1", StudentID: "s1", Progress: 40, Limit: null.IntFrom(10)},
		{CourseID: "c2", StudentID: "s1", Progress: 10},
		{CourseID: "c3", StudentID: "s1", Progress: 90, Limit: null.IntFrom(5)},
		{CourseID: "c1", StudentID: "s2", Progress: 20},
	}
	for i := range recs {
		require.NoError(t, gw.Insert(ctx, coll, &recs[i]))
	}

	var got testRecord
	require.NoError(t, gw.Get(ctx, coll, &got, core.Filter{"course_id": "c3", "student_id": "s1"}))
	assert.Equal(t, recs[2].ID, got.ID)

	err := gw.Get(ctx, coll, &got, core.Filter{"course_id": "nope"})
	assert.Equal(t, core.ErrNoRecord, err)

	err = gw.Get(ctx, coll, &got, core.Filter{"unknown": 1})
	assert.Error(t, err)

	tests := []struct {
		name     string
		filter   core.Filter
		ordering []core.DBOrdering
		wantIDs  []string
	}{
		{
			name:     "by student, progress asc",
			filter:   core.Filter{"student_id": "s1"},
			ordering: []core.DBOrdering{{Field: "progress", Ascending: true}},
			wantIDs:  []string{recs[1].ID, recs[0].ID, recs[2].ID},
		},
		{
			name:     "by student, progress desc",
			filter:   core.Filter{"student_id": "s1"},
			ordering: []core.DBOrdering{{Field: "progress"}},
			wantIDs:  []string{recs[2].ID, recs[0].ID, recs[1].ID},
		},
		{
			name:    "comparison op",
			filter:  core.Filter{"progress": core.Gte(40)},
			wantIDs: []string{recs[0].ID, recs[2].ID},
		},
		{
			name:    "nullable column",
			filter:  core.Filter{"time_limit": null.IntFrom(5)},
			wantIDs: []string{recs[2].ID},
		},
		{
			name:    "no match",
			filter:  core.Filter{"student_id": "s9"},
			wantIDs: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows []testRecord
			require.NoError(t, gw.Select(ctx, coll, &rows, tt.filter, tt.ordering...))
			ids := make([]string, 0, len(rows))
			for _, r := range rows {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestGateway_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	gw := newGateway(t)

	rec := testRecord{CourseID: "c1", StudentID: "s1", Tags: map[string]string{"a": "1"}}
	require.NoError(t, gw.Insert(ctx, coll, &rec))
	rec.Tags["a"] = "mutated"

	var got testRecord
	require.NoError(t, gw.Get(ctx, coll, &got, core.Filter{"id": rec.ID}))
	assert.Equal(t, "1", got.Tags["a"])

	got.Tags["a"] = "mutated again"
	var again testRecord
	require.NoError(t, gw.Get(ctx, coll, &again, core.Filter{"id": rec.ID}))
	assert.Equal(t, "1", again.Tags["a"])
}

func TestGateway_Update(t *testing.T) {
	ctx := context.Background()
	gw := newGateway(t)

	r1 := testRecord{CourseID: "c1", StudentID: "s1"}
	r2 := testRecord{CourseID: "c2", StudentID: "s1"}
	require.NoError(t, gw.Insert(ctx, coll, &r1))
	require.NoError(t, gw.Insert(ctx, coll, &r2))

	require.NoError(t, gw.Update(ctx, coll, r1.ID, core.Patch{"progress": 55, "time_limit": null.IntFrom(3)}))
	var got testRecord
	require.NoError(t, gw.Get(ctx, coll, &got, core.Filter{"id": r1.ID}))
	assert.Equal(t, 55.0, got.Progress)
	assert.Equal(t, null.IntFrom(3), got.Limit)

	err := gw.Update(ctx, coll, r2.ID, core.Patch{"course_id": "c1"})
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	assert.Equal(t, core.ErrNoRecord, gw.Update(ctx, coll, "missing", core.Patch{"progress": 1}))
	assert.Error(t, gw.Update(ctx, coll, r1.ID, core.Patch{"progress": "high"}))
}

func TestGateway_Delete(t *testing.T) {
	ctx := context.Background()
	gw := newGateway(t)

	for _, c := range []string{"c1", "c2", "c3"} {
		rec := testRecord{CourseID: c, StudentID: "s1"}
		require.NoError(t, gw.Insert(ctx, coll, &rec))
	}

	n, err := gw.Delete(ctx, coll, core.Filter{"course_id": core.Ne("c2")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = gw.Delete(ctx, core.CollNotifications, core.Filter{"id": "x"})
	require.NoError(t, err)
	assert.Zero(t, n)

	var rows []testRecord
	require.NoError(t, gw.Select(ctx, coll, &rows, nil))
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].CourseID)
}
