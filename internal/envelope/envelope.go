// Package envelope defines the two nested {success, data|error} layers that
// every daemon exchange carries.
//
// The outer Transport layer says whether the daemon was reached and ran the
// command. The inner Response layer, carried pre-serialized in
// Transport.ResponseJSON, says whether the command itself succeeded. Callers
// check the outer Success first and only then look inside.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response is the application-level result of one command.
// Data is present iff Success; Error is present iff !Success.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Transport is the IPC-level result of one request.
// ResponseJSON is present iff Success; Error is present iff !Success.
type Transport struct {
	Success      bool   `json:"success"`
	ResponseJSON string `json:"responseJson,omitempty"`
	Error        string `json:"error,omitempty"`
}

var (
	errBothPresent    = errors.New("both payload and error present")
	errNeitherPresent = errors.New("neither payload nor error present")
)

// OK returns a successful Response carrying data. A nil data value is
// encoded as JSON null so the data member is always present on success.
func OK(data any) Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return Fail(fmt.Errorf("encoding result: %w", err))
	}
	return Response{Success: true, Data: raw}
}

// Fail returns a failed Response describing err.
func Fail(err error) Response {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Response{Success: false, Error: msg}
}

// Failf formats an application error.
func Failf(format string, args ...any) Response {
	return Fail(fmt.Errorf(format, args...))
}

// Decode unmarshals Data into v.
func (r Response) Decode(v any) error {
	if !r.Success {
		return errors.New(r.Error)
	}
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	return json.Unmarshal(r.Data, v)
}

// Validate reports whether r honors the success/data/error exclusivity.
func (r Response) Validate() error {
	hasData := len(r.Data) > 0
	hasErr := r.Error != ""
	switch {
	case r.Success && hasErr:
		return errBothPresent
	case r.Success && !hasData:
		return errNeitherPresent
	case !r.Success && hasData:
		return errBothPresent
	case !r.Success && !hasErr:
		return errNeitherPresent
	}
	return nil
}

// Carry wraps an application Response in a successful Transport.
func Carry(r Response) Transport {
	raw, err := json.Marshal(r)
	if err != nil {
		// Response only holds a string and pre-encoded JSON; re-wrap as a failure
		// so the outer layer still reports that the daemon ran the command.
		raw, _ = json.Marshal(Fail(fmt.Errorf("encoding response: %w", err)))
	}
	return Transport{Success: true, ResponseJSON: string(raw)}
}

// TransportError builds a failed Transport.
func TransportError(err error) Transport {
	msg := "transport failure"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Transport{Success: false, Error: msg}
}

// TransportErrorf formats a failed Transport.
func TransportErrorf(format string, args ...any) Transport {
	return TransportError(fmt.Errorf(format, args...))
}

// Validate reports whether t honors the success/responseJson/error exclusivity.
func (t Transport) Validate() error {
	hasPayload := t.ResponseJSON != ""
	hasErr := t.Error != ""
	switch {
	case t.Success && hasErr, !t.Success && hasPayload:
		return errBothPresent
	case t.Success && !hasPayload, !t.Success && !hasErr:
		return errNeitherPresent
	}
	return nil
}

// Unwrap returns the application Response inside t. A failed transport
// becomes a failed Response with the same message; a missing or unparseable
// payload becomes a synthesized failure.
func (t Transport) Unwrap() Response {
	if !t.Success {
		if t.Error == "" {
			return Fail(errors.New("transport failure"))
		}
		return Response{Success: false, Error: t.Error}
	}
	if t.ResponseJSON == "" {
		return Fail(errors.New("daemon returned no response payload"))
	}

	var r Response
	if err := json.Unmarshal([]byte(t.ResponseJSON), &r); err != nil {
		return Fail(fmt.Errorf("decoding daemon response: %w", err))
	}
	if err := r.Validate(); err != nil {
		return Fail(fmt.Errorf("malformed daemon response: %w", err))
	}
	return r
}
