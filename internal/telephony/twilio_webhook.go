package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// TwilioStatusForm is the subset of a voice status callback we act on.
// Twilio posts application/x-www-form-urlencoded.
type TwilioStatusForm struct {
	CallSid      string
	AccountSid   string
	CallStatus   string
	CallDuration *int
	From         string
	To           string
	Direction    string
	Timestamp    string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: r.PostFormValue("AccountSid"),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		Timestamp:  r.PostFormValue("Timestamp"),
	}
	// CallDuration is only present on terminal statuses.
	if d := strings.TrimSpace(r.PostFormValue("CallDuration")); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n >= 0 {
			f.CallDuration = &n
		}
	}
	return f, nil
}

type TwilioSMSStatusForm struct {
	MessageSid    string
	MessageStatus string
	To            string
	ErrorCode     string
}

func ParseTwilioSMSStatus(r *http.Request) (TwilioSMSStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioSMSStatusForm{}, err
	}
	return TwilioSMSStatusForm{
		MessageSid:    r.PostFormValue("MessageSid"),
		MessageStatus: r.PostFormValue("MessageStatus"),
		To:            normalizePhone(r.PostFormValue("To")),
		ErrorCode:     r.PostFormValue("ErrorCode"),
	}, nil
}

// Twilio sends "anonymous" or empty for withheld numbers; keep as-is.
func normalizePhone(s string) string {
	return strings.TrimSpace(s)
}
