package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/progress"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
	inmemdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database/inmem"
	redisdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/redis"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/tests/testutil"
)

const (
	freeCourseID = "course-free"
	paidCourseID = "course-paid"
	testQuizID   = "quiz-1"
	testPassword = "secret1"
)

type fakePayments struct {
	mutex         sync.Mutex
	intents       []enrollment.Intent
	verifications map[string]enrollment.Verification
}

func (f *fakePayments) CreateCheckout(_ context.Context, intent enrollment.Intent) (enrollment.Checkout, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.intents = append(f.intents, intent)
	return enrollment.Checkout{Link: "https://pay.test/checkout/" + intent.Reference}, nil
}

// lastIntent returns the last checkout requested.
func (f *fakePayments) lastIntent(t *testing.T) enrollment.Intent {
	t.Helper()
	f.mutex.Lock()
	defer f.mutex.Unlock()
	require.NotEmpty(t, f.intents)
	return f.intents[len(f.intents)-1]
}

func (f *fakePayments) VerifyTransaction(_ context.Context, transactionID string) (enrollment.Verification, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	ver, ok := f.verifications[transactionID]
	if !ok {
		return enrollment.Verification{}, errors.New("unknown transaction")
	}
	return ver, nil
}

func (f *fakePayments) approve(transactionID, ref string, amount float64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.verifications[transactionID] = enrollment.Verification{
		TransactionID: transactionID,
		Reference:     ref,
		Status:        enrollment.StatusSuccessful,
		Amount:        amount,
		Currency:      "NGN",
	}
}

type testApp struct {
	server   *Server
	db       *inmemdb.Gateway
	gw       *testutil.FailingGateway
	payments *fakePayments
	redis    *miniredis.Miniredis
	mailer   *testutil.Mailer
	logger   *testutil.Logger
}

func setup(t *testing.T) *testApp {
	t.Helper()
	db := inmemdb.NewGateway()
	gw := testutil.NewFailingGateway(db)
	conf := core.NewTestConfig()
	translator := core.NewTranslator()
	validate := testutil.NewValidator()
	enrollment.InitValidators(validate, translator)
	logger := new(testutil.Logger)

	app := &testApp{
		db:       db,
		gw:       gw,
		payments: &fakePayments{verifications: make(map[string]enrollment.Verification)},
		mailer:   new(testutil.Mailer),
		logger:   logger,
	}

	authSvc := auth.NewService(gw, validate, conf)
	app.redis = miniredis.RunT(t)
	client, err := redisdb.Open(context.Background(), core.RedisConfig{Addr: app.redis.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	progressSvc := progress.NewService(gw, redisdb.NewCache(client), logger, 0)
	ctx, cancel := context.WithCancel(context.Background())
	registry := quiz.NewRegistry(ctx, func() (*quiz.Engine, error) {
		return quiz.NewEngine(gw, progressSvc, logger, conf.Quiz.DefaultPassingScore)
	})
	t.Cleanup(func() {
		registry.Close()
		cancel()
	})

	app.server = NewServer(conf, logger, Deps{
		Auth: authSvc,
		Enrollment: enrollment.Deps{
			Gateway:  gw,
			Profiles: authSvc,
			Payments: app.payments,
			Recovery: enrollment.NewMemoryRecoveryStore(),
			Sealer:   enrollment.NewSealer(conf.SecretKey),
			Validate: validate,
			Mailer:   app.mailer,
			Progress: progressSvc,
			Logger:   logger,
			Conf:     conf,
		},
		Quizzes:    registry,
		Progress:   progressSvc,
		Mailer:     app.mailer,
		Validate:   validate,
		Translator: translator,
	})

	testutil.MustInsert(t, db, core.CollCourses,
		&enrollment.Course{ID: freeCourseID, Title: "Intro to Git", Currency: "NGN", IsPublished: true},
		&enrollment.Course{ID: paidCourseID, Title: "Go in Production", Price: 100, DiscountedPrice: null.Float64From(80), Currency: "NGN", IsPublished: true},
	)
	testutil.MustInsert(t, db, core.CollQuizzes, &quiz.Quiz{ID: testQuizID, Title: "Go basics", CourseID: paidCourseID, IsPublished: true})
	testutil.MustInsert(t, db, core.CollQuizQuestions,
		&quiz.Question{ID: "q1", QuizID: testQuizID, Question: "Keyword for goroutines?", Options: quiz.StringList{"go", "async"}, CorrectAnswer: "go", Points: 1, OrderNumber: 1},
		&quiz.Question{ID: "q2", QuizID: testQuizID, Question: "Zero value of a map?", Options: quiz.StringList{"nil", "{}"}, CorrectAnswer: "nil", Points: 1, OrderNumber: 2},
	)
	return app
}

func newAuthRequest(method, path, token string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		_ = json.NewEncoder(&body).Encode(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

// do serves the request and decodes the JSON answer into a map.
func (app *testApp) do(t *testing.T, method, path, token string, data ...interface{}) (int, map[string]interface{}) {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	res := make(map[string]interface{})
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec.Code, res
}

func (app *testApp) signUp(t *testing.T, email string) string {
	t.Helper()
	code, res := app.do(t, http.MethodPost, "/v1/auth/signup", "", echoMap{"email": email, "password": testPassword, "first_name": "Amara"})
	require.Equal(t, http.StatusCreated, code, res)
	return res["token"].(string)
}

type echoMap = map[string]interface{}

func enrollForm(email string) echoMap {
	return echoMap{
		"first_name": "Amara",
		"last_name":  "Okafor",
		"email":      email,
		"password":   testPassword,
		"phone":      "+2348012345678",
		"country":    "NG",
		"motivation": "I want to ship Go services to production",
	}
}

func TestAuthAPI(t *testing.T) {
	app := setup(t)
	token := app.signUp(t, "amara@example.com")

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     interface{}
		wantCode int
		check    func(t *testing.T, res map[string]interface{})
	}{
		{
			name: "sign up twice", method: http.MethodPost, path: "/v1/auth/signup",
			body:     echoMap{"email": "AMARA@example.com", "password": testPassword},
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.Equal(t, auth.ErrAlreadyRegistered.Error(), res["email"])
			},
		},
		{
			name: "sign up invalid", method: http.MethodPost, path: "/v1/auth/signup",
			body:     echoMap{"email": "nope", "password": "1"},
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.Contains(t, res, "email")
				assert.Contains(t, res, "password")
			},
		},
		{
			name: "login wrong password", method: http.MethodPost, path: "/v1/auth/login",
			body:     echoMap{"email": "amara@example.com", "password": "wrong-one"},
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.Equal(t, auth.ErrInvalidCredentials.Error(), res["error"])
			},
		},
		{
			name: "login", method: http.MethodPost, path: "/v1/auth/login",
			body:     echoMap{"email": " Amara@Example.com ", "password": testPassword},
			wantCode: http.StatusOK,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.NotEmpty(t, res["token"])
				idt := res["identity"].(map[string]interface{})
				assert.Equal(t, "amara@example.com", idt["user"].(map[string]interface{})["email"])
				assert.Equal(t, auth.RoleStudent, idt["profile"].(map[string]interface{})["role"])
			},
		},
		{
			name: "me without token", method: http.MethodGet, path: "/v1/auth/me",
			wantCode: http.StatusUnauthorized,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.Equal(t, "missing or malformed jwt", res["error"])
			},
		},
		{
			name: "me with bad token", method: http.MethodGet, path: "/v1/auth/me", token: "not.a.token",
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "me", method: http.MethodGet, path: "/v1/auth/me", token: token,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.Equal(t, "amara@example.com", res["user"].(map[string]interface{})["email"])
			},
		},
		{
			name: "token refresh", method: http.MethodPost, path: "/v1/auth/token-refresh", token: token,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res map[string]interface{}) {
				assert.NotEmpty(t, res["token"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var code int
			var res map[string]interface{}
			if tt.body != nil {
				code, res = app.do(t, tt.method, tt.path, tt.token, tt.body)
			} else {
				code, res = app.do(t, tt.method, tt.path, tt.token)
			}
			assert.Equal(t, tt.wantCode, code, res)
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}
}

func TestEnrollmentAPI_course(t *testing.T) {
	app := setup(t)

	code, res := app.do(t, http.MethodGet, "/v1/courses/"+paidCourseID, "")
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, 80.0, res["effective_price"])
	assert.Equal(t, false, res["is_free"])
	assert.Equal(t, "Go in Production", res["title"])

	code, res = app.do(t, http.MethodGet, "/v1/courses/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, enrollment.ErrCourseNotFound.Error(), res["error"])
}

func TestEnrollmentAPI_free(t *testing.T) {
	app := setup(t)

	code, res := app.do(t, http.MethodPost, "/v1/courses/"+freeCourseID+"/enroll", "", echoMap{"email": "amara@example.com"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res, "first_name")
	assert.Contains(t, res, "password")

	code, res = app.do(t, http.MethodPost, "/v1/courses/"+freeCourseID+"/enroll", "", enrollForm("amara@example.com"))
	require.Equal(t, http.StatusCreated, code, res)
	assert.Equal(t, string(enrollment.StateEnrolled), res["state"])
	require.Contains(t, res, "session", "the new account is signed in")
	token := res["session"].(map[string]interface{})["token"].(string)

	sent := app.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "enrollment_confirmation", sent[0].TemplateName)

	// enrolling again with the session
	code, res = app.do(t, http.MethodPost, "/v1/courses/"+freeCourseID+"/enroll", token, enrollForm("amara@example.com"))
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(enrollment.StateAlreadyEnrolled), res["state"])
	assert.NotContains(t, res, "session")

	// an existing account with another password
	form := enrollForm("amara@example.com")
	form["password"] = "another1"
	code, res = app.do(t, http.MethodPost, "/v1/courses/"+freeCourseID+"/enroll", "", form)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, enrollment.ErrWrongPassword.Error(), res["password"])
}

func TestEnrollmentAPI_paid(t *testing.T) {
	app := setup(t)
	enrollPath := "/v1/courses/" + paidCourseID + "/enroll"

	code, res := app.do(t, http.MethodPost, enrollPath, "", enrollForm("amara@example.com"))
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(enrollment.StateAwaitingExternalPayment), res["state"])
	assert.True(t, strings.HasPrefix(res["redirect_url"].(string), "https://pay.test/checkout/course-"+paidCourseID+"-"))
	token := res["session"].(map[string]interface{})["token"].(string)

	code, res = app.do(t, http.MethodGet, "/v1/me/progress", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, 0.0, res["enrolled_courses"])

	// the form can be recovered, without its password
	code, res = app.do(t, http.MethodGet, enrollPath+"/pending?email=Amara@example.com", "")
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, true, res["found"])
	form := res["form"].(map[string]interface{})
	assert.Equal(t, "Okafor", form["last_name"])
	assert.NotContains(t, form, "password")

	code, res = app.do(t, http.MethodGet, enrollPath+"/pending", "")
	assert.Equal(t, http.StatusBadRequest, code, res)

	code, res = app.do(t, http.MethodGet, enrollPath+"/return?payment=cancelled&tx_ref=r1&email=amara@example.com", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, enrollment.ErrPaymentCancelled.Error(), res["error"])

	code, _ = app.do(t, http.MethodGet, enrollPath+"/return?payment=success&transaction_id=tx-1&email=amara@example.com", "")
	assert.Equal(t, http.StatusInternalServerError, code, "unknown transaction")
	assert.Equal(t, 1, app.logger.Count("error"))

	// back from checkout through the return URL the engine built
	intent := app.payments.lastIntent(t)
	app.payments.approve("tx-1", intent.Reference, 80)
	ret, err := url.Parse(intent.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "/courses/"+paidCourseID+"/enroll", ret.Path)
	code, res = app.do(t, http.MethodGet, enrollPath+"/return?"+ret.RawQuery+"&transaction_id=tx-1", "")
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(enrollment.StateEnrolled), res["state"])
	assert.Contains(t, res, "session", "signed in with the recovered password")
	assert.Equal(t, "tx-1", res["transaction"].(map[string]interface{})["payment_reference"])

	code, res = app.do(t, http.MethodGet, "/v1/me/progress", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, 1.0, res["enrolled_courses"], "the cached summary was dropped")

	// the recovery record is gone: without a session the payer must sign in
	code, res = app.do(t, http.MethodGet, enrollPath+"/return?payment=success&transaction_id=tx-1&email=amara@example.com", "")
	require.Equal(t, http.StatusUnauthorized, code, res)
	assert.Contains(t, res["login_url"], "http://app.test/login?")
	assert.Contains(t, res["login_url"], "transaction_id=tx-1")

	// with a session the callback is idempotent
	code, res = app.do(t, http.MethodGet, enrollPath+"/return?payment=success&transaction_id=tx-1", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(enrollment.StateAlreadyEnrolled), res["state"])

	var txs []enrollment.PaymentTransaction
	require.NoError(t, app.db.Select(context.Background(), core.CollPaymentTransactions, &txs, core.Filter{}))
	assert.Len(t, txs, 1)
}

func TestQuizAPI(t *testing.T) {
	app := setup(t)
	token := app.signUp(t, "amara@example.com")
	attempt := "/v1/quizzes/" + testQuizID + "/attempt"

	code, res := app.do(t, http.MethodGet, attempt, "")
	assert.Equal(t, http.StatusUnauthorized, code, res)

	code, res = app.do(t, http.MethodPost, "/v1/quizzes/unknown/attempt", token)
	assert.Equal(t, http.StatusNotFound, code, res)

	code, res = app.do(t, http.MethodPost, attempt, token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(quiz.StateInProgress), res["state"])
	assert.Equal(t, "q1", res["question"].(map[string]interface{})["id"])

	code, res = app.do(t, http.MethodPost, attempt+"/navigate", token, NavigateRequest{Direction: quiz.Next})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, quiz.ErrMissingAnswer.Error(), res["error"])

	code, res = app.do(t, http.MethodPut, attempt+"/answers", token, AnswerRequest{QuestionID: "q9", Option: "go"})
	assert.Equal(t, http.StatusBadRequest, code, res)

	steps := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodPut, attempt + "/answers", AnswerRequest{QuestionID: "q1", Option: "go"}},
		{http.MethodPost, attempt + "/navigate", NavigateRequest{Direction: quiz.Next}},
		{http.MethodPut, attempt + "/answers", AnswerRequest{QuestionID: "q2", Option: "{}"}},
	}
	for _, step := range steps {
		code, res = app.do(t, step.method, step.path, token, step.body)
		require.Equal(t, http.StatusOK, code, res)
	}
	assert.Equal(t, 2.0, res["answered"])

	code, res = app.do(t, http.MethodGet, attempt, token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, "q2", res["question"].(map[string]interface{})["id"], "the attempt is kept between requests")

	// starting again resumes the attempt
	code, res = app.do(t, http.MethodPost, attempt, token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, 2.0, res["answered"])
	assert.Equal(t, "q2", res["question"].(map[string]interface{})["id"])

	code, res = app.do(t, http.MethodPost, attempt+"/submit", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(quiz.StateSubmitted), res["state"])
	result := res["result"].(map[string]interface{})
	assert.Equal(t, 50.0, result["percentage"])
	assert.Equal(t, false, result["is_passed"])

	code, _ = app.do(t, http.MethodPost, attempt+"/submit", token)
	assert.Equal(t, http.StatusConflict, code)

	sent := app.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "quiz_result", sent[0].TemplateName)
	assert.Equal(t, "amara@example.com", sent[0].To[0].Address)

	code, res = app.do(t, http.MethodPost, attempt+"/corrections", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, true, res["show_corrections"])
	assert.Len(t, res["corrections"], 2)

	code, res = app.do(t, http.MethodGet, "/v1/me/progress", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, 0.0, res["enrolled_courses"])

	code, res = app.do(t, http.MethodPost, attempt+"/retake", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(quiz.StateInProgress), res["state"])
	assert.Equal(t, 0.0, res["answered"])

	// nothing submitted since: retaking again is fine
	code, res = app.do(t, http.MethodPost, attempt+"/retake", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, string(quiz.StateInProgress), res["state"])

	code, _ = app.do(t, http.MethodDelete, attempt, token)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestProgressAPI(t *testing.T) {
	app := setup(t)
	token := app.signUp(t, "amara@example.com")
	code, res := app.do(t, http.MethodGet, "/v1/auth/me", token)
	require.Equal(t, http.StatusOK, code)
	studentID := res["user"].(map[string]interface{})["id"].(string)

	testutil.MustInsert(t, app.db, core.CollEnrollments, &enrollment.Enrollment{CourseID: paidCourseID, StudentID: studentID, Progress: 40})
	testutil.MustInsert(t, app.db, core.CollQuizSubmissions, &quiz.Submission{QuizID: testQuizID, StudentID: studentID, Percentage: 100, IsPassed: true})

	code, res = app.do(t, http.MethodGet, "/v1/me/progress", token)
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, 1.0, res["enrolled_courses"])
	assert.Equal(t, 1.0, res["quizzes_passed"])
	assert.Equal(t, 40.0, res["average_progress"])

	app.redis.FlushAll()
	app.gw.Fail("select", core.CollEnrollments, 1)
	code, res = app.do(t, http.MethodGet, "/v1/me/progress", token)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), res["error"])
	assert.Equal(t, 1, app.logger.Count("error"))
}

func TestMetrics(t *testing.T) {
	app := setup(t)
	app.signUp(t, "amara@example.com")
	app.do(t, http.MethodGet, "/v1/auth/me", "")

	req, rec := newAuthRequest(http.MethodGet, "/metrics", "")
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `switch2tech_auth_events_total{event="signup"} 1`)
	assert.Contains(t, body, `switch2tech_http_requests_total{code="201",method="POST",route="/v1/auth/signup"} 1`)
	assert.Contains(t, body, `switch2tech_http_requests_total{code="401",method="GET",route="/v1/auth/me"} 1`)
}
