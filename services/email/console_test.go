package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/tests"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := testutil.NewTestConfig(t)
	svc := NewConsoleServiceMock(conf, testutil.NewLogger())

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Jane", Address: "jane@x.com"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Jane", "ResetURL": "http://x/abc", "ValidFor": "1h0m0s"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hi"},
		&core.EmailMessage{
			To:           []mail.Address{{Address: "bob@x.com"}},
			TemplateName: "unknown_template",
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Hello Jane,")
	assert.Contains(t, sent[0].TextContent, "http://x/abc")
	assert.Contains(t, sent[0].TextContent, conf.AppName)

	msg, ok := svc.LastMessageTo("jane@x.com")
	assert.True(t, ok)
	assert.Equal(t, "Password Reset", msg.Subject)
	_, ok = svc.LastMessageTo("bob@x.com")
	assert.False(t, ok)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_Format(t *testing.T) {
	conf := testutil.NewTestConfig(t)
	svc := NewConsoleService(conf, testutil.NewLogger(), nil).(*consoleService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@x.com"}, {Address: "bob@x.com"}},
		Subject:     "Hello",
		TextContent: "body text",
	}
	out := svc.format(msg)
	assert.Contains(t, out, "Subject: ["+conf.AppName+"] Hello")
	assert.Contains(t, out, `To: "Jane" <jane@x.com>, <bob@x.com>`)
	assert.Contains(t, out, "body text")
}
