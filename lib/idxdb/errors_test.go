package idxdb

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/idxdb/lib/host"
)

func TestNewError(t *testing.T) {
	err := NewError(Code(42), "", nil, nil)
	if err.Code != CodeUnknown {
		t.Errorf("Expected an invalid code to fall back to UNKNOWN, got %s", err.Code)
	}
	if err.Message != CodeUnknown.DefaultMessage() {
		t.Errorf("Expected the default message, got %q", err.Message)
	}
	if err.Details == nil || err.Time.IsZero() {
		t.Errorf("Expected details and time to be set")
	}

	err = NewError(CodeKeyExists, "   ", Details{"store": "users"}, nil)
	if err.Message != "The key you are trying to add already exists." {
		t.Errorf("Expected a blank message to fall back to the default, got %q", err.Message)
	}
	if err.Details["store"] != "users" {
		t.Errorf("Expected the details to be kept, got %v", err.Details)
	}

	err = NewError(CodeVersionErr, "custom", nil, errors.New("cause"))
	if !strings.Contains(err.Error(), "VERSION_ERR") || !strings.Contains(err.Error(), "custom") || !strings.Contains(err.Error(), "cause") {
		t.Errorf("Unexpected error string %q", err.Error())
	}
}

func TestCodes(t *testing.T) {
	expected := map[Code]string{
		1: "UNKNOWN",
		2: "KEY_EXISTS",
		3: "CONSTRAINT_VIOLATION",
		4: "VERSION_ERR",
		5: "TRANSACTION_ABORT_ERR",
	}
	for code, name := range expected {
		if !code.Valid() || code.String() != name {
			t.Errorf("Expected code %d to be %s, got %s", uint64(code), name, code)
		}
		if code.DefaultMessage() == "" {
			t.Errorf("Code %s has no default message", code)
		}
	}
	if Code(0).Valid() || Code(6).Valid() {
		t.Errorf("Codes outside 1..5 must be invalid")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected Code
	}{
		{host.Wrap(host.NameConstraint, host.ErrKeyExists, "duplicate"), CodeKeyExists},
		{host.NewError(host.NameConstraint, "unique index"), CodeConstraintViolation},
		{host.NewError(host.NameVersion, "too old"), CodeVersionErr},
		{host.NewError(host.NameAbort, "aborted"), CodeTransactionAbort},
		{host.NewError(host.NameData, "bad key"), CodeUnknown},
		{errors.New("plain"), CodeUnknown},
		{fmt.Errorf("record 1: %w", host.Wrap(host.NameConstraint, host.ErrKeyExists, "duplicate")), CodeKeyExists},
	}
	for _, tc := range tests {
		if got := Classify(tc.err); got != tc.expected {
			t.Errorf("Classify(%v) = %s, expected %s", tc.err, got, tc.expected)
		}
	}
}

func TestFromHost(t *testing.T) {
	hostErr := host.NewError(host.NameVersion, "requested 1, stored 2")
	err := FromHost(hostErr, Details{"version": 1})
	if err.Code != CodeVersionErr || err.Message != "requested 1, stored 2" {
		t.Errorf("Unexpected error %+v", err)
	}
	if !errors.Is(err, hostErr) {
		t.Errorf("Expected the host error to be the cause")
	}
	if CodeOf(err) != CodeVersionErr {
		t.Errorf("CodeOf returned %s", CodeOf(err))
	}

	if again := FromHost(fmt.Errorf("wrapped: %w", err), nil); again != err {
		t.Errorf("Expected an *Error to be returned unchanged")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Errorf("Expected UNKNOWN for foreign errors")
	}
}
