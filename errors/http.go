package errors

import (
	"fmt"
	"net/http"
)

const (
	// internalCode is used for all errors that do not provide a registered
	// code.
	internalCode uint32 = 1
	internalLog         = "internal error"
)

// httpStatus maps registered codes to the HTTP status returned by the API.
// Codes that are not listed here are reported as a bad request.
var httpStatus = map[uint32]int{
	ErrUnauthorized.code:  http.StatusUnauthorized,
	ErrNotFound.code:      http.StatusNotFound,
	ErrDuplicate.code:     http.StatusConflict,
	ErrConflict.code:      http.StatusConflict,
	ErrInProgress.code:    http.StatusConflict,
	ErrQuotaExceeded.code: http.StatusTooManyRequests,
	ErrBroadcast.code:     http.StatusBadGateway,
	ErrNetwork.code:       http.StatusBadGateway,
	ErrTimeout.code:       http.StatusGatewayTimeout,
	ErrDatabase.code:      http.StatusInternalServerError,
	ErrHuman.code:         http.StatusInternalServerError,
	ErrPanic.code:         http.StatusInternalServerError,
}

// HTTPInfo returns the HTTP status, the registered code and a message that
// can be safely presented to an API client.
//
// Any error that does not provide a registered code is categorized as an
// internal error with code 1. When not running in a debug mode, messages of
// internal errors are replaced with a generic "internal error".
func HTTPInfo(err error, debug bool) (status int, code uint32, msg string) {
	if isNilErr(err) {
		return http.StatusOK, 0, ""
	}

	c := codeOf(err)
	if c == internalCode || ErrPanic.Is(err) {
		if debug {
			return http.StatusInternalServerError, c, fmt.Sprintf("%+v", err)
		}
		return http.StatusInternalServerError, internalCode, internalLog
	}

	status, ok := httpStatus[c]
	if !ok {
		status = http.StatusBadRequest
	}
	if debug {
		return status, c, fmt.Sprintf("%+v", err)
	}
	return status, c, err.Error()
}

type coder interface {
	Code() uint32
}

// codeOf returns the registered code carried by given error or any error it
// wraps. It returns the internal code if none is found.
func codeOf(err error) uint32 {
	for {
		if c, ok := err.(coder); ok {
			return c.Code()
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return internalCode
		}
	}
}

func code(err error) uint32 {
	if isNilErr(err) {
		return 0
	}
	return codeOf(err)
}
