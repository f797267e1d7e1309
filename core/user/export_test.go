package user

import "time"

func SetNow(svc Service, now func() time.Time) {
	svc.(*service).now = now
}

func PasswordPolicyViolation(pwd string, attrs ...string) string {
	return passwordPolicyViolation(pwd, attrs...)
}
