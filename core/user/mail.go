package user

import (
	"net/mail"
	"strings"

	"github.com/schoolms/backend/core"
)

func (usr User) mailAddress() mail.Address {
	return mail.Address{Name: usr.Profile.Name, Address: usr.Email}
}

func (svc *service) sendAccountCreatedMail(usr User, pwd string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{usr.mailAddress()},
		Subject:      "Your " + strings.ToLower(usr.Role.Title()) + " account",
		TemplateName: "account_created",
		TemplateData: map[string]string{
			"Role":     strings.ToLower(usr.Role.Title()),
			"Username": usr.Username,
			"Password": pwd,
		},
	})
}

func (svc *service) sendPasswordResetMail(usr User, token string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{usr.mailAddress()},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":     usr.Profile.Name,
			"ResetURL": svc.conf.FrontendBaseURL + token,
			"ValidFor": svc.conf.PasswordResetTimeoutDelta.String(),
		},
	})
}

func (svc *service) sendPasswordChangedMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{usr.mailAddress()},
		Subject:      "Password Changed",
		TemplateName: "password_changed",
		TemplateData: map[string]string{
			"Name":     usr.Profile.Name,
			"Username": usr.Username,
		},
	})
}
