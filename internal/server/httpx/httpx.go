// Package httpx holds the JSON plumbing shared by every handler: encoding,
// bounded decoding, and the error envelope.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
)

// MaxBodyBytes bounds request bodies; game payloads are small.
const MaxBodyBytes = 1 << 20

// WriteJSON encodes v with the given status. Encoding failures are logged;
// the status line has already gone out.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode failed err=%v", err)
	}
}

// ErrorEnvelope is the JSON shape of every failed request.
type ErrorEnvelope struct {
	Success   bool                `json:"success"`
	ErrorCode platformerrors.Code `json:"error_code"`
	Message   string              `json:"message"`
	Retryable bool                `json:"retryable"`
}

// WriteError maps a domain error to its HTTP status and envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := platformerrors.CodeOf(err)
	if code == platformerrors.CodeUnknown {
		code = platformerrors.CodeInternal
	}
	WriteJSON(w, code.HTTPStatus(), ErrorEnvelope{
		Success:   false,
		ErrorCode: code,
		Message:   err.Error(),
		Retryable: code.Retryable(),
	})
}

// Decode reads a bounded JSON body into v. An empty body is an error; use
// DecodeOptional for endpoints whose body may be absent.
func Decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return platformerrors.Wrap(platformerrors.CodeInvalidArgument, "decode request body", err)
	}
	return nil
}

// DecodeOptional reads a bounded JSON body into v, treating an empty body as
// the zero value.
func DecodeOptional(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	err := dec.Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return platformerrors.Wrap(platformerrors.CodeInvalidArgument, "decode request body", err)
}
