// Package assertions contains the comparison logic backing the assert
// and require test packages. Assertion failures route through the given
// logger func, so the same checks can either fail the test immediately
// or record an error and continue.
package assertions

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus/hooks/test"
)

// AssertionLoggerFn is t.Errorf or t.Fatalf.
type AssertionLoggerFn func(string, ...interface{})

// TB is the subset of testing.TB these helpers need.
type TB interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Equal compares values with ==.
func Equal(loggerFn AssertionLoggerFn, expected, actual interface{}, msg ...interface{}) {
	if expected != actual {
		errMsg := parseMsg("Values are not equal", msg...)
		loggerFn("%s, want: %[2]v (%[2]T), got: %[3]v (%[3]T)", errMsg, expected, actual)
	}
}

// NotEqual compares values with !=.
func NotEqual(loggerFn AssertionLoggerFn, expected, actual interface{}, msg ...interface{}) {
	if expected == actual {
		errMsg := parseMsg("Values are equal", msg...)
		loggerFn("%s, both values are: %v", errMsg, expected)
	}
}

// DeepEqual compares values with reflect.DeepEqual.
func DeepEqual(loggerFn AssertionLoggerFn, expected, actual interface{}, msg ...interface{}) {
	if !reflect.DeepEqual(expected, actual) {
		errMsg := parseMsg("Values are not equal", msg...)
		loggerFn("%s, want: %v, got: %v", errMsg, expected, actual)
	}
}

// NoError fails when err is non-nil.
func NoError(loggerFn AssertionLoggerFn, err error, msg ...interface{}) {
	if err != nil {
		errMsg := parseMsg("Unexpected error", msg...)
		loggerFn("%s: %v", errMsg, err)
	}
}

// ErrorIs fails unless errors.Is(err, target).
func ErrorIs(loggerFn AssertionLoggerFn, target, err error, msg ...interface{}) {
	if !errors.Is(err, target) {
		errMsg := parseMsg("Expected error not returned", msg...)
		loggerFn("%s, got: %v, want: %v", errMsg, err, target)
	}
}

// ErrorContains fails unless err is non-nil and mentions want.
func ErrorContains(loggerFn AssertionLoggerFn, want string, err error, msg ...interface{}) {
	if err == nil || !strings.Contains(err.Error(), want) {
		errMsg := parseMsg("Expected error not returned", msg...)
		loggerFn("%s, got: %v, want: %s", errMsg, err, want)
	}
}

// NotNil fails when obj is nil or a typed nil.
func NotNil(loggerFn AssertionLoggerFn, obj interface{}, msg ...interface{}) {
	if isNil(obj) {
		errMsg := parseMsg("Unexpected nil value", msg...)
		loggerFn(errMsg)
	}
}

// StringContains checks that actual contains (or, with flag false, does
// not contain) the wanted substring.
func StringContains(loggerFn AssertionLoggerFn, want, actual string, flag bool, msg ...interface{}) {
	contains := strings.Contains(actual, want)
	if flag && !contains {
		errMsg := parseMsg("Expected substring not found", msg...)
		loggerFn("%s, got: %s, want: %s", errMsg, actual, want)
	} else if !flag && contains {
		errMsg := parseMsg("Unexpected substring found", msg...)
		loggerFn("%s, got: %s, unwanted: %s", errMsg, actual, want)
	}
}

// LogsContain scans a logrus test hook for a message substring.
func LogsContain(loggerFn AssertionLoggerFn, hook *test.Hook, want string, flag bool, msg ...interface{}) {
	entries := hook.AllEntries()
	match := false
	var logs []string
	for _, e := range entries {
		if strings.Contains(e.Message, want) {
			match = true
		}
		logs = append(logs, e.Message)
	}
	if flag && !match {
		errMsg := parseMsg("Expected log not found", msg...)
		loggerFn("%s: %q, logs: %v", errMsg, want, logs)
	} else if !flag && match {
		errMsg := parseMsg("Unexpected log found", msg...)
		loggerFn("%s: %q", errMsg, want)
	}
}

func parseMsg(defaultMsg string, msg ...interface{}) string {
	if len(msg) >= 1 {
		msgFormat, ok := msg[0].(string)
		if !ok {
			return defaultMsg
		}
		return fmt.Sprintf(msgFormat, msg[1:]...)
	}
	return defaultMsg
}

func isNil(obj interface{}) bool {
	if obj == nil {
		return true
	}
	value := reflect.ValueOf(obj)
	switch value.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return value.IsNil()
	}
	return false
}
