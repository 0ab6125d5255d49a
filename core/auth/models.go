package auth

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

// Roles
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleInstructor, RoleAdmin}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Instructor", Value: RoleInstructor},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User holds the credentials of an account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash []byte    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"` // UTC
	LastLogin    null.Time `db:"last_login" json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// Profile holds the public attributes of an account. Profile.ID is the User.ID.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Role      string    `db:"role" json:"role"`
	Phone     string    `db:"phone" json:"phone"`
	Country   string    `db:"country" json:"country"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName is "First Last", falling back to whichever part is set.
func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Identity is an authenticated user enriched with its profile.
type Identity struct {
	User    User    `json:"user"`
	Profile Profile `json:"profile"`
}

func (i Identity) ID() string    { return i.User.ID }
func (i Identity) Email() string { return i.User.Email }
func (i Identity) Role() string  { return i.Profile.Role }

func (i Identity) DisplayName() string {
	if name := i.Profile.DisplayName(); name != "" {
		return name
	}
	return i.User.Email
}

func (i Identity) IsAdmin() bool      { return i.Profile.Role == RoleAdmin }
func (i Identity) IsInstructor() bool { return i.Profile.Role == RoleInstructor }
func (i Identity) IsStudent() bool    { return i.Profile.Role == RoleStudent }

// SignUpRequest contains information needed to create a new account.
type SignUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"omitempty,min=2"`
	LastName  string `json:"last_name" validate:"omitempty,min=2"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
	Country   string `json:"country"`
	Role      string `json:"role" validate:"omitempty,signuprole"`
}

func (r *SignUpRequest) Clean() {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.FirstName = core.CleanString(r.FirstName)
	r.LastName = core.CleanString(r.LastName)
	r.Phone = core.CleanString(r.Phone)
	r.Country = core.CleanString(r.Country)
	r.Role = core.CleanString(r.Role, true /* lower */)
	if r.Role == "" {
		r.Role = RoleStudent
	}
}

// ProfileUpdate defines what may be changed on a Profile. Empty fields are left untouched.
type ProfileUpdate struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

func (pu ProfileUpdate) patch() core.Patch {
	patch := make(core.Patch, 4)
	if v := core.CleanString(pu.FirstName); v != "" {
		patch["first_name"] = v
	}
	if v := core.CleanString(pu.LastName); v != "" {
		patch["last_name"] = v
	}
	if v := core.CleanString(pu.Phone); v != "" {
		patch["phone"] = v
	}
	if v := core.CleanString(pu.Country); v != "" {
		patch["country"] = v
	}
	return patch
}
