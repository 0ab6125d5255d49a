package auth

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyRegistered  = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("account deactivated")
)

// Service manages accounts and their profiles over the Gateway. It holds no session state.
type Service struct {
	gw       core.Gateway
	validate *validator.Validate
	conf     *core.Config
}

func NewService(gw core.Gateway, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{gw: gw, validate: validate, conf: conf}
}

// SignUp creates an account and its profile.
func (svc *Service) SignUp(ctx context.Context, req SignUpRequest) (Identity, error) {
	req.Clean()
	if err := svc.validate.Struct(req); err != nil {
		return Identity{}, err
	}

	if _, err := svc.getUser(ctx, core.Filter{"email": req.Email}); err == nil {
		return Identity{}, ErrAlreadyRegistered
	} else if err != ErrNotFound {
		return Identity{}, err
	}

	now := NowFunc().UTC()
	usr := User{
		Email:     req.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(req.Password); err != nil {
		return Identity{}, errors.Wrap(err, "hashing password")
	}
	if err := svc.gw.Insert(ctx, core.CollUsers, &usr); err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return Identity{}, ErrAlreadyRegistered
		}
		return Identity{}, core.NewPersistenceError("creating user", err)
	}

	prof := Profile{
		ID:        usr.ID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Phone:     req.Phone,
		Country:   req.Country,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.gw.Insert(ctx, core.CollProfiles, &prof); err != nil {
		_, _ = svc.gw.Delete(ctx, core.CollUsers, core.Filter{"id": usr.ID})
		return Identity{}, core.NewPersistenceError("creating profile", err)
	}
	return Identity{User: usr, Profile: prof}, nil
}

// SignIn checks the credentials and records the login time.
func (svc *Service) SignIn(ctx context.Context, email, pwd string) (Identity, error) {
	usr, err := svc.getUser(ctx, core.Filter{"email": core.CleanString(email, true /* lower */)})
	if err != nil {
		if err == ErrNotFound {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return Identity{}, ErrAccountDeactivated
	}

	usr.LastLogin = null.TimeFrom(NowFunc().UTC())
	if err = svc.gw.Update(ctx, core.CollUsers, usr.ID, core.Patch{"last_login": usr.LastLogin}); err != nil {
		return Identity{}, core.NewPersistenceError("setting last login", err)
	}

	prof, err := svc.getProfile(ctx, usr.ID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{User: usr, Profile: prof}, nil
}

// GetIdentity looks up a user and its profile (role & display name).
func (svc *Service) GetIdentity(ctx context.Context, id string) (Identity, error) {
	usr, err := svc.getUser(ctx, core.Filter{"id": id})
	if err != nil {
		return Identity{}, err
	}
	prof, err := svc.getProfile(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	return Identity{User: usr, Profile: prof}, nil
}

func (svc *Service) UpdateProfile(ctx context.Context, id string, pu ProfileUpdate) error {
	patch := pu.patch()
	if len(patch) == 0 {
		return nil
	}
	patch["updated_at"] = NowFunc().UTC()
	if err := svc.gw.Update(ctx, core.CollProfiles, id, patch); err != nil {
		if err == core.ErrNoRecord {
			return ErrNotFound
		}
		return core.NewPersistenceError("updating profile", err)
	}
	return nil
}

// SetPassword replaces the password of the account with the given email.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.getUser(ctx, core.Filter{"email": core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	patch := core.Patch{"password_hash": usr.PasswordHash, "updated_at": NowFunc().UTC()}
	if err = svc.gw.Update(ctx, core.CollUsers, usr.ID, patch); err != nil {
		return core.NewPersistenceError("setting password", err)
	}
	return nil
}

// SetRole changes the role on the profile of the account with the given email.
func (svc *Service) SetRole(ctx context.Context, email, role string) error {
	usr, err := svc.getUser(ctx, core.Filter{"email": core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err = svc.gw.Update(ctx, core.CollProfiles, usr.ID, core.Patch{"role": role, "updated_at": NowFunc().UTC()}); err != nil {
		if err == core.ErrNoRecord {
			return ErrNotFound
		}
		return core.NewPersistenceError("setting role", err)
	}
	return nil
}

func (svc *Service) getUser(ctx context.Context, filter core.Filter) (User, error) {
	var usr User
	if err := svc.gw.Get(ctx, core.CollUsers, &usr, filter); err != nil {
		if err == core.ErrNoRecord {
			return User{}, ErrNotFound
		}
		return User{}, core.NewPersistenceError("getting user", err)
	}
	return usr, nil
}

func (svc *Service) getProfile(ctx context.Context, id string) (Profile, error) {
	var prof Profile
	if err := svc.gw.Get(ctx, core.CollProfiles, &prof, core.Filter{"id": id}); err != nil {
		if err == core.ErrNoRecord {
			return Profile{}, ErrNotFound
		}
		return Profile{}, core.NewPersistenceError("getting profile", err)
	}
	return prof, nil
}
