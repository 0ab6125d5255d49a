package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

// ConsoleService writes emails to a std logger instead of sending them.
type ConsoleService struct {
	appName          string
	frontendBaseURL  string
	defaultFromEmail mail.Address
	subjPrefix       string
	std              *log.Logger
	logger           core.Logger
	sync             bool // send in the calling goroutine

	mutex sync.Mutex
	sent  []core.EmailMessage
	wg    sync.WaitGroup
}

var _ core.EmailService = (*ConsoleService)(nil)

// NewConsoleService returns a ConsoleService printing to std; a nil std prints nothing.
func NewConsoleService(conf *core.Config, std *log.Logger, logger core.Logger) *ConsoleService {
	return &ConsoleService{
		appName:          conf.AppName,
		frontendBaseURL:  conf.FrontendBaseURL,
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		std:              std,
		logger:           logger,
	}
}

// NewConsoleServiceMock returns a silent ConsoleService sending synchronously.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleService {
	svc := NewConsoleService(conf, nil, logger)
	svc.sync = true
	return svc
}

func (svc *ConsoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sync {
			svc.sendMessage(msg)
			continue
		}
		svc.wg.Add(1)
		go func(msg *core.EmailMessage) {
			defer svc.wg.Done()
			svc.sendMessage(msg)
		}(msg)
	}
}

// Wait blocks until the messages being sent are out.
func (svc *ConsoleService) Wait() {
	svc.wg.Wait()
}

// Sent returns the messages sent so far.
func (svc *ConsoleService) Sent() []core.EmailMessage {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(svc.appName, svc.frontendBaseURL); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.Subject, err), errors.Wrap(err, "rendering email"))
		return
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	body, err := svc.format(*msg)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("formatting email %q: %v", msg.Subject, err), err)
		return
	}
	if svc.std != nil {
		svc.std.Println(body)
	}
	svc.mutex.Lock()
	svc.sent = append(svc.sent, *msg)
	svc.mutex.Unlock()
}

func (svc *ConsoleService) format(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		if w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}}); err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err = altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart/alternative")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
