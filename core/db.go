package core

import (
	"context"
	"regexp"
)

// Collection names a table/collection behind the Gateway.
type Collection string

const (
	CollCourses               Collection = "courses"
	CollLessons               Collection = "lessons"
	CollEnrollments           Collection = "enrollments"
	CollQuizzes               Collection = "quizzes"
	CollQuizQuestions         Collection = "quiz_questions"
	CollQuizSubmissions       Collection = "quiz_submissions"
	CollAssignments           Collection = "assignments"
	CollAssignmentSubmissions Collection = "assignment_submissions"
	CollPaymentTransactions   Collection = "payment_transactions"
	CollNotifications         Collection = "notifications"
	CollUsers                 Collection = "users"
	CollProfiles              Collection = "profiles"
	CollPendingEnrollments    Collection = "pending_enrollments"
)

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether s can be used verbatim as a table or column name.
func ValidIdentifier(s string) bool {
	return identRegex.MatchString(s)
}

// Op wraps a Filter value to compare with something other than equality.
type Op struct {
	Cmp   string // one of <, <=, >, >=, <>
	Value interface{}
}

func Lt(v interface{}) Op  { return Op{Cmp: "<", Value: v} }
func Gte(v interface{}) Op { return Op{Cmp: ">=", Value: v} }
func Ne(v interface{}) Op  { return Op{Cmp: "<>", Value: v} }

type (
	// Filter is a conjunction of `column = value` conditions. Values may be wrapped in an Op.
	Filter map[string]interface{}

	// Patch maps columns to their new values.
	Patch map[string]interface{}

	// Gateway is the typed CRUD surface over named collections.
	// Records are pointers to structs whose fields carry `db` tags; every record has an `id` column.
	Gateway interface {
		// Insert stores rec. An empty `id` is filled with a new UUID and a zero `created_at` with the current time.
		// Uniqueness violations return ErrConflict.
		Insert(ctx context.Context, coll Collection, rec interface{}) error
		// Get loads the first record matching filter into dest. Returns ErrNoRecord if none matches.
		Get(ctx context.Context, coll Collection, dest interface{}, filter Filter) error
		// Select loads every record matching filter into dest, a pointer to a slice of structs.
		Select(ctx context.Context, coll Collection, dest interface{}, filter Filter, ordering ...DBOrdering) error
		// Update applies patch to the record with the given id. Returns ErrNoRecord if it does not exist.
		Update(ctx context.Context, coll Collection, id string, patch Patch) error
		// Delete removes every record matching filter and returns how many were removed.
		Delete(ctx context.Context, coll Collection, filter Filter) (int64, error)
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
