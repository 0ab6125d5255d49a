package enrollment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

// Payment statuses
const (
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusPending    = "pending"
)

type Course struct {
	ID              string       `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	InstructorID    null.String  `db:"instructor_id" json:"instructor_id"`
	Price           float64      `db:"price" json:"price"`
	DiscountedPrice null.Float64 `db:"discounted_price" json:"discounted_price"`
	Currency        string       `db:"currency" json:"currency"`
	IsPublished     bool         `db:"is_published" json:"is_published"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// EffectivePrice is the discounted price when it is set, positive and below the list price; the list price otherwise.
func (c Course) EffectivePrice() float64 {
	if c.DiscountedPrice.Valid && c.DiscountedPrice.Float64 > 0 && c.DiscountedPrice.Float64 < c.Price {
		return c.DiscountedPrice.Float64
	}
	return c.Price
}

func (c Course) IsFree() bool {
	return c.EffectivePrice() <= 0
}

// Form is an enrollment request. Password is only used to create (or sign in to) an account.
type Form struct {
	FirstName  string `json:"first_name" validate:"required,min=2"`
	LastName   string `json:"last_name" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password,omitempty" validate:"omitempty,min=6"`
	Phone      string `json:"phone" validate:"required,min=10,phone"`
	Country    string `json:"country"`
	Currency   string `json:"currency"`
	Motivation string `json:"motivation" validate:"required,min=20"`
}

func (f *Form) Clean() {
	f.FirstName = core.CleanString(f.FirstName)
	f.LastName = core.CleanString(f.LastName)
	f.Email = core.CleanString(f.Email, true /* lower */)
	f.Phone = core.CleanString(f.Phone)
	f.Country = core.CleanString(f.Country)
	f.Currency = core.CleanString(f.Currency)
	f.Motivation = core.CleanString(f.Motivation)
}

func (f Form) withoutPassword() Form {
	f.Password = ""
	return f
}

func (f Form) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *Form) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into Form", src)
	}
}

// PendingEnrollment is the recovery record of an enrollment interrupted by the payment redirect.
// The password is kept sealed, never in clear.
type PendingEnrollment struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Form           Form      `db:"form" json:"form"`
	SealedPassword string    `db:"sealed_password" json:"sealed_password"`
	Reference      string    `db:"reference" json:"reference"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PendingID is the key of the recovery record of email's enrollment in courseID.
func PendingID(courseID, email string) string {
	return courseID + ":" + core.CleanString(email, true /* lower */)
}

// JSONMap is an opaque JSON object.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(m))
}

func (m *JSONMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
}

type PaymentTransaction struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	Amount           float64   `db:"amount" json:"amount"`
	Currency         string    `db:"currency" json:"currency"`
	PaymentReference string    `db:"payment_reference" json:"payment_reference"`
	Status           string    `db:"status" json:"status"`
	PaymentMethod    string    `db:"payment_method" json:"payment_method"`
	Metadata         JSONMap   `db:"metadata" json:"metadata"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Progress  float64   `db:"progress" json:"progress"`
	Completed bool      `db:"completed" json:"completed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Type      string    `db:"type" json:"type"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
