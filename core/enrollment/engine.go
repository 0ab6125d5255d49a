package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
)

// State of an Engine.
type State string

const (
	StateFormEntry               State = "form_entry"
	StateFreeEnroll              State = "free_enroll"
	StateAwaitingExternalPayment State = "awaiting_external_payment"
	StateVerifyingReturn         State = "verifying_return"
	StateEnrolled                State = "enrolled"
	StateAlreadyEnrolled         State = "already_enrolled"
	StateError                   State = "error"
)

// Values of the `payment` query parameter the payment provider sends the payer back with.
const (
	PaymentSuccess   = "success"
	PaymentCancelled = "cancelled"
)

// Routing key of the event published once a student is enrolled.
const EventEnrollmentCreated = "enrollment.created"

var (
	NowFunc = time.Now // mockable

	// errors
	ErrCourseNotFound     = errors.New("course not found")
	ErrNotLoaded          = errors.New("no course loaded")
	ErrWrongPassword      = errors.New("an account exists for this email but the password does not match")
	ErrPaymentCancelled   = errors.New("payment was cancelled, you can try again")
	ErrPaymentNotVerified = errors.New("payment could not be verified")
	ErrPaymentMismatch    = errors.New("payment belongs to another enrollment")
)

// UnrecoverableError is returned when a payment return can neither be tied to a session nor to recovered credentials.
// The payer must sign in through LoginURL so the enrollment can resume.
type UnrecoverableError struct {
	CourseID      string
	TransactionID string
	LoginURL      string
}

func (err *UnrecoverableError) Error() string {
	return fmt.Sprintf("sign in to complete your enrollment in course %s", err.CourseID)
}

// Sessions is the view of the client's session the engine needs. *auth.SessionManager satisfies it.
type Sessions interface {
	Current() (auth.Session, bool)
	SignUp(ctx context.Context, req auth.SignUpRequest) (auth.Session, error)
	SignIn(ctx context.Context, email, pwd string) (auth.Session, error)
}

var _ Sessions = (*auth.SessionManager)(nil)

type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, id string, pu auth.ProfileUpdate) error
}

// ProgressNotifier is told when a student joins a course. *progress.Service satisfies it.
type ProgressNotifier interface {
	StudentProgressChanged(ctx context.Context, studentID, courseID string) error
}

// Deps are the collaborators shared by every Engine. Mailer, Events and Progress are optional.
type Deps struct {
	Gateway  core.Gateway
	Profiles ProfileUpdater
	Payments PaymentGateway
	Recovery RecoveryStore
	Sealer   *Sealer
	Validate *validator.Validate
	Mailer   core.EmailService
	Events   EventPublisher
	Progress ProgressNotifier
	Logger   core.Logger
	Conf     *core.Config
}

// Outcome is where an operation left the enrollment.
// RedirectURL is set when the payer must leave: to the checkout page or to sign in.
type Outcome struct {
	State       State               `json:"state"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	Reference   string              `json:"reference,omitempty"`
	Enrollment  *Enrollment         `json:"enrollment,omitempty"`
	Transaction *PaymentTransaction `json:"transaction,omitempty"`
}

// ReturnParams are the query parameters the payer comes back from the payment page with.
type ReturnParams struct {
	Payment       string `query:"payment"`
	TransactionID string `query:"transaction_id"`
	Reference     string `query:"tx_ref"`
	Email         string `query:"email"`
}

// Engine reconciles one enrollment of one client into a course, across the payment redirect.
type Engine struct {
	deps     Deps
	sessions Sessions

	mutex  sync.Mutex
	state  State
	course Course
	err    error
}

func NewEngine(deps Deps, sessions Sessions) (*Engine, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Gateway, "Gateway"),
		vala.IsNotNil(deps.Profiles, "Profiles"),
		vala.IsNotNil(deps.Payments, "Payments"),
		vala.IsNotNil(deps.Recovery, "Recovery"),
		vala.IsNotNil(deps.Sealer, "Sealer"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Conf, "Conf"),
	).Check(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, errors.New("parameter sessions is nil")
	}
	return &Engine{deps: deps, sessions: sessions, state: StateFormEntry}, nil
}

// Load fetches the course to enroll into.
func (e *Engine) Load(ctx context.Context, courseID string) (Course, error) {
	var course Course
	if err := e.deps.Gateway.Get(ctx, core.CollCourses, &course, core.Filter{"id": courseID}); err != nil {
		if err == core.ErrNoRecord {
			return Course{}, ErrCourseNotFound
		}
		return Course{}, core.NewPersistenceError("loading course", err)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.course = course
	e.state = StateFormEntry
	e.err = nil
	return course, nil
}

func (e *Engine) State() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.state
}

// Err is the error that moved the engine to StateError.
func (e *Engine) Err() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.err
}

func (e *Engine) Course() Course {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.course
}

func (e *Engine) setState(state State) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.state = state
	e.err = nil
}

// fail moves the engine to StateError and returns err.
func (e *Engine) fail(err error) (Outcome, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.state = StateError
	e.err = err
	return Outcome{State: StateError}, err
}

func (e *Engine) loadedCourse() (Course, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.course.ID == "" {
		return Course{}, ErrNotLoaded
	}
	return e.course, nil
}

// Submit validates the form, saves it for recovery and either enrolls (free course) or sends the payer to checkout.
func (e *Engine) Submit(ctx context.Context, form Form) (Outcome, error) {
	course, err := e.loadedCourse()
	if err != nil {
		return Outcome{}, err
	}

	form.Clean()
	sess, hasSession := e.sessions.Current()
	if hasSession {
		err = e.deps.Validate.Struct(form)
	} else {
		err = e.deps.Validate.Struct(anonymousForm{form})
	}
	if err != nil {
		return Outcome{State: e.State()}, err
	}

	var userID string
	if hasSession {
		userID = sess.Identity.ID()
	}
	if err = e.savePending(ctx, course, form, userID, ""); err != nil {
		return e.fail(err)
	}

	if !hasSession {
		if sess, err = e.EnsureAccount(ctx, form); err != nil {
			return e.fail(err)
		}
		userID = sess.Identity.ID()
	}

	if enr, found, err := e.findEnrollment(ctx, course.ID, userID); err != nil {
		return e.fail(err)
	} else if found {
		return e.alreadyEnrolled(ctx, course, form.Email, enr), nil
	}

	if course.IsFree() {
		e.setState(StateFreeEnroll)
		return e.EnrollDirectly(ctx, form, userID)
	}
	return e.InitiateExternalPayment(ctx, form, userID)
}

// EnsureAccount returns the current session, or creates the account of the form and signs it in.
// When the email is already registered it signs in with the form's password instead, failing with ErrWrongPassword if it does not match.
func (e *Engine) EnsureAccount(ctx context.Context, form Form) (auth.Session, error) {
	if sess, ok := e.sessions.Current(); ok {
		return sess, nil
	}

	sess, err := e.sessions.SignUp(ctx, auth.SignUpRequest{
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Phone:     form.Phone,
		Country:   form.Country,
		Role:      auth.RoleStudent,
	})
	if err == nil {
		return sess, nil
	}
	if errors.Cause(err) != auth.ErrAlreadyRegistered {
		return auth.Session{}, err
	}

	sess, err = e.sessions.SignIn(ctx, form.Email, form.Password)
	if err != nil {
		if errors.Cause(err) == auth.ErrInvalidCredentials {
			return auth.Session{}, ErrWrongPassword
		}
		return auth.Session{}, err
	}
	return sess, nil
}

// InitiateExternalPayment creates the checkout of the course's effective price and returns its link as the RedirectURL.
// The pending enrollment is saved with the payment reference before the checkout is requested.
func (e *Engine) InitiateExternalPayment(ctx context.Context, form Form, userID string) (Outcome, error) {
	course, err := e.loadedCourse()
	if err != nil {
		return Outcome{}, err
	}

	ref := fmt.Sprintf("%s%d", referencePrefix(course.ID, userID), NowFunc().UnixMilli())
	if err = e.savePending(ctx, course, form, userID, ref); err != nil {
		return e.fail(err)
	}

	intent := Intent{
		Reference: ref,
		Amount:    course.EffectivePrice(),
		Currency:  course.Currency,
		Title:     course.Title,
		ReturnURL: e.enrollURL(course.ID, url.Values{"payment": {PaymentSuccess}, "tx_ref": {ref}}),
		CancelURL: e.enrollURL(course.ID, url.Values{"payment": {PaymentCancelled}, "tx_ref": {ref}}),
		Customer: Customer{
			Email: form.Email,
			Name:  core.CleanString(form.FirstName + " " + form.LastName),
			Phone: form.Phone,
		},
		Meta: map[string]string{"course_id": course.ID, "user_id": userID},
	}
	checkout, err := e.deps.Payments.CreateCheckout(ctx, intent)
	if err != nil {
		return e.fail(errors.Wrap(err, "creating checkout"))
	}

	e.setState(StateAwaitingExternalPayment)
	return Outcome{State: StateAwaitingExternalPayment, RedirectURL: checkout.Link, Reference: ref}, nil
}

// VerifyReturn handles the payer coming back from the payment page.
// A cancelled payment leaves the saved form in place. A successful one is recorded for the current session,
// or for the account of the recovered form; without either, it fails with an *UnrecoverableError.
func (e *Engine) VerifyReturn(ctx context.Context, params ReturnParams) (Outcome, error) {
	course, err := e.loadedCourse()
	if err != nil {
		return Outcome{}, err
	}

	switch params.Payment {
	case PaymentCancelled:
		return e.fail(ErrPaymentCancelled)
	case PaymentSuccess:
	default:
		return e.fail(ErrPaymentNotVerified)
	}
	if params.TransactionID == "" {
		return e.fail(ErrPaymentNotVerified)
	}
	e.setState(StateVerifyingReturn)

	sess, hasSession := e.sessions.Current()
	pending, err := e.returningPending(ctx, course, params, sess, hasSession)
	if err != nil {
		return e.fail(err)
	}
	form := pending.Form

	if hasSession {
		return e.recordPaymentAndEnroll(ctx, sess.Identity.ID(), params.TransactionID, form, pending.Reference)
	}

	if pending.SealedPassword != "" {
		pwd, err := e.deps.Sealer.Open(pending.SealedPassword)
		if err == nil && pwd != "" {
			form.Password = pwd
			if sess, err = e.EnsureAccount(ctx, form); err != nil {
				return e.fail(err)
			}
			return e.recordPaymentAndEnroll(ctx, sess.Identity.ID(), params.TransactionID, form, pending.Reference)
		}
		e.deps.Logger.Warn(fmt.Sprintf("opening sealed password of %s: %v", pending.ID, err), err)
	}

	login := url.Values{"pending_course": {course.ID}, "transaction_id": {params.TransactionID}}
	return e.fail(&UnrecoverableError{
		CourseID:      course.ID,
		TransactionID: params.TransactionID,
		LoginURL:      e.deps.Conf.FrontendBaseURL + e.deps.Conf.Enrollment.LoginPath + "?" + login.Encode(),
	})
}

// returningPending finds the form saved before the payer left for checkout: by the checkout reference first,
// then by the email of the return or of the session. A record saved for another user is ignored.
func (e *Engine) returningPending(ctx context.Context, course Course, params ReturnParams, sess auth.Session, hasSession bool) (PendingEnrollment, error) {
	pending, err := e.deps.Recovery.LoadByReference(ctx, params.Reference)
	switch {
	case err == ErrNoPendingEnrollment:
		email := params.Email
		if email == "" && hasSession {
			email = sess.Identity.Email()
		}
		if email == "" {
			return PendingEnrollment{}, nil
		}
		if pending, err = e.deps.Recovery.Load(ctx, course.ID, email); err == ErrNoPendingEnrollment {
			return PendingEnrollment{}, nil
		}
	}
	if err != nil {
		return PendingEnrollment{}, core.NewPersistenceError("loading pending enrollment", err)
	}

	if pending.CourseID != course.ID {
		return PendingEnrollment{}, nil
	}
	if hasSession && pending.UserID != "" && pending.UserID != sess.Identity.ID() {
		e.deps.Logger.Warn(fmt.Sprintf("pending enrollment %s belongs to another user, ignoring it", pending.ID))
		return PendingEnrollment{}, nil
	}
	return pending, nil
}

// RecordPaymentAndEnroll verifies the transaction with the provider, records it once and enrolls the payer.
// The transaction must have been made for the loaded course by userID.
// The payment reference is unique: calling it again for the same transaction records nothing new.
func (e *Engine) RecordPaymentAndEnroll(ctx context.Context, userID, transactionID string, form Form) (Outcome, error) {
	return e.recordPaymentAndEnroll(ctx, userID, transactionID, form, "")
}

// recordPaymentAndEnroll also requires the checkout reference to be wantRef, when set.
func (e *Engine) recordPaymentAndEnroll(ctx context.Context, userID, transactionID string, form Form, wantRef string) (Outcome, error) {
	course, err := e.loadedCourse()
	if err != nil {
		return Outcome{}, err
	}

	ver, err := e.deps.Payments.VerifyTransaction(ctx, transactionID)
	if err != nil {
		return e.fail(errors.Wrap(err, "verifying transaction"))
	}
	if err = e.checkVerification(course, userID, ver, wantRef); err != nil {
		e.deps.Logger.Warn(fmt.Sprintf("transaction %s not accepted for %s in %s: %v (status %q, amount %.2f %s, reference %q)",
			transactionID, userID, course.ID, err, ver.Status, ver.Amount, ver.Currency, ver.Reference))
		return e.fail(err)
	}

	tx, err := e.recordTransaction(ctx, course, userID, transactionID, ver)
	if err != nil {
		return e.fail(err)
	}
	return e.enroll(ctx, course, form, userID, &tx)
}

// checkVerification accepts a successful payment of at least the effective price, in the course's currency,
// whose reference was issued for userID's enrollment in the course.
func (e *Engine) checkVerification(course Course, userID string, ver Verification, wantRef string) error {
	// amounts are compared to the cent
	if ver.Status != StatusSuccessful || ver.Amount+0.005 < course.EffectivePrice() {
		return ErrPaymentNotVerified
	}
	if course.Currency != "" && !strings.EqualFold(ver.Currency, course.Currency) {
		return ErrPaymentNotVerified
	}
	if !strings.HasPrefix(ver.Reference, referencePrefix(course.ID, userID)) {
		return ErrPaymentMismatch
	}
	if wantRef != "" && ver.Reference != wantRef {
		return ErrPaymentMismatch
	}
	return nil
}

// referencePrefix starts every checkout reference of userID's enrollment in courseID.
func referencePrefix(courseID, userID string) string {
	return fmt.Sprintf("course-%s-%s-", courseID, userID)
}

func (e *Engine) recordTransaction(ctx context.Context, course Course, userID, transactionID string, ver Verification) (PaymentTransaction, error) {
	var tx PaymentTransaction
	filter := core.Filter{"payment_reference": transactionID}
	err := e.deps.Gateway.Get(ctx, core.CollPaymentTransactions, &tx, filter)
	if err == nil {
		return tx, sameEnrollment(tx, course.ID, userID)
	} else if err != core.ErrNoRecord {
		return tx, core.NewPersistenceError("loading payment transaction", err)
	}

	meta := JSONMap{"tx_ref": ver.Reference, "transaction_id": transactionID}
	if ver.Raw != nil {
		meta["provider"] = map[string]interface{}(ver.Raw)
	}
	currency := ver.Currency
	if currency == "" {
		currency = course.Currency
	}
	tx = PaymentTransaction{
		UserID:           userID,
		CourseID:         course.ID,
		Amount:           ver.Amount,
		Currency:         currency,
		PaymentReference: transactionID,
		Status:           ver.Status,
		PaymentMethod:    ver.PaymentMethod,
		Metadata:         meta,
		CreatedAt:        NowFunc().UTC(),
	}
	if err = e.deps.Gateway.Insert(ctx, core.CollPaymentTransactions, &tx); err != nil {
		if errors.Cause(err) != core.ErrConflict {
			return tx, core.NewPersistenceError("recording payment transaction", err)
		}
		// recorded concurrently
		if err = e.deps.Gateway.Get(ctx, core.CollPaymentTransactions, &tx, filter); err != nil {
			return tx, core.NewPersistenceError("loading payment transaction", err)
		}
		return tx, sameEnrollment(tx, course.ID, userID)
	}
	return tx, nil
}

// sameEnrollment fails with ErrPaymentMismatch when tx was recorded for another course or user.
func sameEnrollment(tx PaymentTransaction, courseID, userID string) error {
	if tx.CourseID != courseID || tx.UserID != userID {
		return ErrPaymentMismatch
	}
	return nil
}

// EnrollDirectly enrolls userID into the loaded course, unless already enrolled.
func (e *Engine) EnrollDirectly(ctx context.Context, form Form, userID string) (Outcome, error) {
	course, err := e.loadedCourse()
	if err != nil {
		return Outcome{}, err
	}
	return e.enroll(ctx, course, form, userID, nil)
}

func (e *Engine) enroll(ctx context.Context, course Course, form Form, userID string, tx *PaymentTransaction) (Outcome, error) {
	enr, found, err := e.findEnrollment(ctx, course.ID, userID)
	if err != nil {
		return e.fail(err)
	}
	if found {
		out := e.alreadyEnrolled(ctx, course, form.Email, enr)
		out.Transaction = tx
		return out, nil
	}

	err = e.deps.Profiles.UpdateProfile(ctx, userID, auth.ProfileUpdate{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Phone:     form.Phone,
		Country:   form.Country,
	})
	if err != nil {
		return e.fail(err)
	}

	enr = Enrollment{
		CourseID:  course.ID,
		StudentID: userID,
		Progress:  0,
		Completed: false,
		CreatedAt: NowFunc().UTC(),
	}
	if err = e.deps.Gateway.Insert(ctx, core.CollEnrollments, &enr); err != nil {
		if errors.Cause(err) != core.ErrConflict {
			return e.fail(core.NewPersistenceError("creating enrollment", err))
		}
		// enrolled concurrently
		existing, found, err := e.findEnrollment(ctx, course.ID, userID)
		if err != nil {
			return e.fail(err)
		}
		if found {
			out := e.alreadyEnrolled(ctx, course, form.Email, existing)
			out.Transaction = tx
			return out, nil
		}
		return e.fail(core.NewPersistenceError("creating enrollment", core.ErrConflict))
	}

	e.clearPending(ctx, course.ID, form.Email)
	e.setState(StateEnrolled)
	e.announce(ctx, course, form, enr, tx)
	return Outcome{State: StateEnrolled, Enrollment: &enr, Transaction: tx}, nil
}

func (e *Engine) findEnrollment(ctx context.Context, courseID, userID string) (Enrollment, bool, error) {
	var enr Enrollment
	err := e.deps.Gateway.Get(ctx, core.CollEnrollments, &enr, core.Filter{"course_id": courseID, "student_id": userID})
	switch err {
	case nil:
		return enr, true, nil
	case core.ErrNoRecord:
		return Enrollment{}, false, nil
	default:
		return Enrollment{}, false, core.NewPersistenceError("loading enrollment", err)
	}
}

func (e *Engine) alreadyEnrolled(ctx context.Context, course Course, email string, enr Enrollment) Outcome {
	e.clearPending(ctx, course.ID, email)
	e.setState(StateAlreadyEnrolled)
	return Outcome{State: StateAlreadyEnrolled, Enrollment: &enr}
}

// RecoveredForm returns the form saved for email's enrollment into the loaded course, without its password.
func (e *Engine) RecoveredForm(ctx context.Context, email string) (Form, bool, error) {
	course, err := e.loadedCourse()
	if err != nil {
		return Form{}, false, err
	}
	pending, err := e.deps.Recovery.Load(ctx, course.ID, email)
	if err != nil {
		if err == ErrNoPendingEnrollment {
			return Form{}, false, nil
		}
		return Form{}, false, core.NewPersistenceError("loading pending enrollment", err)
	}
	return pending.Form.withoutPassword(), true, nil
}

func (e *Engine) savePending(ctx context.Context, course Course, form Form, userID, ref string) error {
	sealed, err := e.deps.Sealer.Seal(form.Password)
	if err != nil {
		return errors.Wrap(err, "sealing password")
	}
	now := NowFunc().UTC()
	pending := PendingEnrollment{
		CourseID:       course.ID,
		UserID:         userID,
		Form:           form.withoutPassword(),
		SealedPassword: sealed,
		Reference:      ref,
		ExpiresAt:      now.Add(ttlOrDefault(e.deps.Conf.Enrollment.RecoveryTTL)),
		CreatedAt:      now,
	}
	if err = e.deps.Recovery.Save(ctx, pending); err != nil {
		return core.NewPersistenceError("saving pending enrollment", err)
	}
	return nil
}

func (e *Engine) clearPending(ctx context.Context, courseID, email string) {
	if email == "" {
		if sess, ok := e.sessions.Current(); ok {
			email = sess.Identity.Email()
		}
	}
	if email == "" {
		return
	}
	if err := e.deps.Recovery.Delete(ctx, courseID, email); err != nil {
		e.deps.Logger.Error(fmt.Sprintf("clearing pending enrollment of %s in %s: %v", email, courseID, err), err)
	}
}

func (e *Engine) enrollURL(courseID string, query url.Values) string {
	return fmt.Sprintf("%s/courses/%s/enroll?%s", e.deps.Conf.FrontendBaseURL, url.PathEscape(courseID), query.Encode())
}

// announce notifies the student of the new enrollment. Failures are logged only.
func (e *Engine) announce(ctx context.Context, course Course, form Form, enr Enrollment, tx *PaymentTransaction) {
	ntf := Notification{
		UserID:    enr.StudentID,
		Title:     "Enrollment confirmed",
		Message:   fmt.Sprintf("You are now enrolled in %q.", course.Title),
		Type:      "enrollment",
		CreatedAt: NowFunc().UTC(),
	}
	if err := e.deps.Gateway.Insert(ctx, core.CollNotifications, &ntf); err != nil {
		e.deps.Logger.Error(fmt.Sprintf("creating enrollment notification: %v", err), err)
	}

	data := map[string]interface{}{
		"FirstName":   form.FirstName,
		"CourseTitle": course.Title,
		"CourseID":    course.ID,
		"Amount":      0.0,
		"Currency":    course.Currency,
		"Reference":   "",
	}
	if tx != nil {
		data["Amount"] = tx.Amount
		data["Currency"] = tx.Currency
		data["Reference"] = tx.PaymentReference
	}

	email := form.Email
	if email == "" {
		if sess, ok := e.sessions.Current(); ok {
			email = sess.Identity.Email()
		}
	}
	if e.deps.Mailer != nil && email != "" {
		e.deps.Mailer.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: core.CleanString(form.FirstName + " " + form.LastName), Address: email}},
			Subject:      "You are enrolled in " + course.Title,
			TemplateName: "enrollment_confirmation",
			TemplateData: data,
		})
	}

	if e.deps.Progress != nil {
		if err := e.deps.Progress.StudentProgressChanged(ctx, enr.StudentID, course.ID); err != nil {
			e.deps.Logger.Error(fmt.Sprintf("notifying progress change of student %s: %v", enr.StudentID, err), err)
		}
	}

	if e.deps.Events != nil {
		payload := map[string]interface{}{
			"enrollment_id": enr.ID,
			"course_id":     course.ID,
			"student_id":    enr.StudentID,
			"paid":          tx != nil,
		}
		if err := e.deps.Events.Publish(ctx, EventEnrollmentCreated, payload); err != nil {
			e.deps.Logger.Error(fmt.Sprintf("publishing %s: %v", EventEnrollmentCreated, err), err)
		}
	}
}
