package client

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a request whose context has no deadline.
const DefaultTimeout = 15 * time.Second

// httpClient sends JSON requests to a single service.
type httpClient struct {
	base    string
	client  *fasthttp.Client
	headers map[string]string
	timeout time.Duration
}

func newHTTPClient(base string, headers map[string]string) *httpClient {
	return &httpClient{
		base:    base,
		client:  &fasthttp.Client{Name: "safeq"},
		headers: headers,
		timeout: DefaultTimeout,
	}
}

// do sends the request and decodes the response into out, if not nil. A
// path starting with a scheme is used as it is.
func (h *httpClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	uri := path
	if !hasScheme(path) {
		uri = h.base + path
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(errors.ErrInput, err.Error())
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = h.client.DoDeadline(req, resp, deadline)
	} else {
		err = h.client.DoTimeout(req, resp, h.timeout)
	}
	if err != nil {
		return errors.Wrapf(errors.ErrNetwork, "%s %s: %s", method, uri, err)
	}

	if err := statusError(resp.StatusCode(), resp.Body()); err != nil {
		return errors.Wrapf(err, "%s %s", method, uri)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(errors.ErrInput, "decode response: %s", err)
	}
	return nil
}

// statusError maps a non successful response to a registered error.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	switch {
	case status == fasthttp.StatusNotFound:
		return errors.Wrap(errors.ErrNotFound, msg)
	case status == fasthttp.StatusConflict:
		return errors.Wrap(errors.ErrDuplicate, msg)
	case status == fasthttp.StatusTooManyRequests:
		return errors.Wrap(errors.ErrQuotaExceeded, msg)
	case status == fasthttp.StatusUnauthorized, status == fasthttp.StatusForbidden:
		return errors.Wrap(errors.ErrUnauthorized, msg)
	case status == fasthttp.StatusUnprocessableEntity:
		return errors.Wrap(errors.ErrValidation, msg)
	case status < 500:
		return errors.Wrapf(errors.ErrInput, "status %d: %s", status, msg)
	}
	return errors.Wrapf(errors.ErrNetwork, "status %d: %s", status, msg)
}

func hasScheme(path string) bool {
	return len(path) > 7 && (path[:7] == "http://" || path[:8] == "https://")
}
