package http

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	Form        *multipart.Producer // Streamed body; takes precedence over Body
	Timeout     time.Duration
	QueryParams map[string]string
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:      method,
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

// SetForm streams form as the request body. The Content-Type header is
// taken from the producer.
func (r *Request) SetForm(form *multipart.Producer) *Request {
	r.Form = form
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	r.QueryParams[key] = value
	return r
}

func (r *Request) SetBasicAuth(username, password string) *Request {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return r.SetHeader("Authorization", "Basic "+creds)
}

func (r *Request) SetBearerToken(token string) *Request {
	return r.SetHeader("Authorization", "Bearer "+token)
}

func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseHeader splits a "Key: value" command line header.
func ParseHeader(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, ":")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid header %q: expected \"Key: value\"", raw)
	}
	return key, strings.TrimSpace(value), nil
}
