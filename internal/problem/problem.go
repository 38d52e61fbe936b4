// Package problem converts arbitrary failures into one display shape.
//
// Every read-path failure in CareWatch ends up as a *Problem: backend
// HTTP failures, transport errors, decode errors, plain strings. The API
// layer serialises it as the error body.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
)

// DefaultMessage is used when nothing more specific can be extracted.
const DefaultMessage = "Something went wrong, please try again later"

// Problem is the normalised error shape.
type Problem struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error implements error.
func (p *Problem) Error() string {
	if p.Status != 0 {
		return fmt.Sprintf("%d: %s", p.Status, p.Message)
	}
	return p.Message
}

// HTTPStatus returns the status to respond with, 502 when the failure
// never reached a backend response.
func (p *Problem) HTTPStatus() int {
	if p.Status >= http.StatusBadRequest && p.Status < 600 {
		return p.Status
	}
	return http.StatusBadGateway
}

// httpFailure is implemented by backend.HTTPError.
type httpFailure interface {
	error
	HTTPStatus() int
	ResponseBody() any
}

// Normalize maps any failure value into a *Problem. It never panics and
// never returns nil.
//
// Precedence for HTTP failures: body "message", then body "error", then
// the error's own text, then DefaultMessage.
func Normalize(v any) (p *Problem) {
	defer func() {
		if r := recover(); r != nil {
			p = &Problem{Message: DefaultMessage}
		}
	}()

	if isNilPointer(v) {
		return &Problem{Message: DefaultMessage}
	}

	switch e := v.(type) {
	case nil:
		return &Problem{Message: DefaultMessage}
	case *Problem:
		cp := *e
		return &cp
	case string:
		return &Problem{Message: orDefault(e)}
	case map[string]any:
		return fromMap(e)
	case error:
		return fromError(e)
	default:
		return &Problem{Message: DefaultMessage, Details: v}
	}
}

func fromError(err error) *Problem {
	var p *Problem
	if errors.As(err, &p) && p != nil {
		cp := *p
		return &cp
	}

	var hf httpFailure
	if errors.As(err, &hf) && !isNilPointer(hf) {
		out := &Problem{Status: hf.HTTPStatus(), Details: hf.ResponseBody()}
		body, _ := hf.ResponseBody().(map[string]any)
		out.Message = firstString(body, "message", "error")
		if out.Message == "" {
			out.Message = orDefault(hf.Error())
		}
		out.Code = stringish(body["code"])
		return out
	}

	return &Problem{Message: orDefault(err.Error())}
}

// isNilPointer reports whether v is a nil pointer held in a non-nil
// interface, such as a (*backend.HTTPError)(nil) returned as an error.
func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func fromMap(m map[string]any) *Problem {
	p := &Problem{
		Message: orDefault(firstString(m, "message")),
		Code:    stringish(m["code"]),
		Details: m,
	}
	switch s := m["status"].(type) {
	case int:
		p.Status = s
	case float64:
		p.Status = int(s)
	}
	return p
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// stringish renders string or numeric codes; backends send both.
func stringish(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return fmt.Sprintf("%g", c)
	case int:
		return fmt.Sprintf("%d", c)
	case json.Number:
		return c.String()
	default:
		return ""
	}
}

func orDefault(s string) string {
	if s == "" {
		return DefaultMessage
	}
	return s
}
