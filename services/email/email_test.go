package emailsvc

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	appfs "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/fs"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/tests/testutil"
)

func enrollmentMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Amara Okafor", Address: "amara@example.com"}},
		Subject:      "You are enrolled in Go in Production",
		TemplateName: "enrollment_confirmation",
		TemplateData: map[string]interface{}{
			"FirstName":   "Amara",
			"CourseTitle": "Go in Production",
			"CourseID":    "c1",
			"Amount":      80.0,
			"Currency":    "NGN",
			"Reference":   "4242",
		},
	}
}

func TestConsoleService(t *testing.T) {
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, logger, true)
	require.Zero(t, logger.Count("error"))

	svc := NewConsoleServiceMock(core.NewTestConfig(), logger)
	svc.SendMessages(
		enrollmentMessage(),
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, Subject: "plain", BodyStr: "hello"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, `You are now enrolled in "Go in Production".`)
	assert.Contains(t, sent[0].TextContent, "80.00 NGN (ref: 4242)")
	assert.Contains(t, sent[0].TextContent, "http://app.test/courses/c1")
	assert.Contains(t, sent[0].TextContent, "The Switch2Tech team")
	assert.NotEmpty(t, sent[0].HTMLContent)
	assert.Equal(t, "hello", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)

	body, err := svc.format(sent[0])
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Switch2Tech] You are enrolled in Go in Production\r\n")
	assert.Contains(t, body, `To: "Amara Okafor" <amara@example.com>`)
	assert.Contains(t, body, "text/html")
}

func TestConsoleService_async(t *testing.T) {
	core.ParseEmailTemplates(appfs.FS, new(testutil.Logger), true)
	svc := NewConsoleService(core.NewTestConfig(), nil, new(testutil.Logger))
	svc.SendMessages(enrollmentMessage(), enrollmentMessage())
	svc.Wait()
	assert.Len(t, svc.Sent(), 2)
}

func TestConsoleService_renderError(t *testing.T) {
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, logger, true)
	svc := NewConsoleServiceMock(core.NewTestConfig(), logger)

	msg := enrollmentMessage()
	msg.TemplateData = map[string]interface{}{"FirstName": "Amara"} // missing keys
	svc.SendMessages(msg)
	assert.Empty(t, svc.Sent())
	assert.Equal(t, 1, logger.Count("error"))
}

func TestSendgridService(t *testing.T) {
	core.ParseEmailTemplates(appfs.FS, new(testutil.Logger), true)

	var (
		mutex sync.Mutex
		got   map[string]interface{}
		auth  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := ioutil.ReadAll(r.Body)
		mutex.Lock()
		defer mutex.Unlock()
		auth = r.Header.Get("Authorization")
		_ = json.Unmarshal(raw, &got)
		if strings.HasSuffix(r.URL.Path, endpoint) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.SendgridApiKey = "SG.test"
	logger := new(testutil.Logger)
	svc := NewSendgridService(conf, logger)
	svc.host = srv.URL

	svc.SendMessages(enrollmentMessage())
	svc.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, "Bearer SG.test", auth)
	require.NotNil(t, got)
	assert.Equal(t, "noreply@test.local", got["from"].(map[string]interface{})["email"])
	pers := got["personalizations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "[Switch2Tech] You are enrolled in Go in Production", pers["subject"])
	assert.Len(t, got["content"], 2)
	assert.Zero(t, logger.Count("error"))
}
