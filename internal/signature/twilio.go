package signature

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/client"
)

const TwilioHeader = "X-Twilio-Signature"

// Twilio checks X-Twilio-Signature with the SDK's request validator.
//
// BaseURL replaces scheme and host of the request; Twilio signs the public
// URL it called, which differs from what we see behind a proxy.
type Twilio struct {
	AuthToken string
	BaseURL   string
}

func (t Twilio) Verify(r *http.Request, body []byte) error {
	if t.AuthToken == "" {
		return ErrNotConfigured
	}
	got := r.Header.Get(TwilioHeader)
	if got == "" {
		return ErrMissingSignature
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return ErrInvalidSignature
	}
	// Status callbacks never repeat a key.
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	v := client.NewRequestValidator(t.AuthToken)
	if !v.Validate(t.publicURL(r), params, got) {
		return ErrInvalidSignature
	}
	return nil
}

func (t Twilio) publicURL(r *http.Request) string {
	if t.BaseURL != "" {
		return strings.TrimRight(t.BaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
