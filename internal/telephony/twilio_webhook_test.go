package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseTwilioStatus(t *testing.T) {
	body := strings.NewReader("CallSid=CA123&CallStatus=completed&CallDuration=61&From=%2B15551234567&To=%2B15557654321")
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/twilio/status", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTwilioStatus(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" || form.CallStatus != "completed" {
		t.Fatalf("unexpected form: %+v", form)
	}
	if form.CallDuration == nil || *form.CallDuration != 61 {
		t.Fatalf("expected duration 61")
	}
	if form.From != "+15551234567" || form.To != "+15557654321" {
		t.Fatalf("unexpected from/to: %q %q", form.From, form.To)
	}
}

func TestParseTwilioStatus_NoDurationWhileRinging(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/twilio/status", strings.NewReader("CallSid=CA1&CallStatus=ringing&CallDuration=abc"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTwilioStatus(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if form.CallDuration != nil {
		t.Fatalf("expected no duration")
	}
}
