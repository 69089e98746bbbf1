// Package require provides fatal test assertions.
package require

import (
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spknetwork/storage-coordinator/testing/assertions"
)

// Equal compares values using the comparison operator.
func Equal(tb assertions.TB, expected, actual interface{}, msg ...interface{}) {
	assertions.Equal(tb.Fatalf, expected, actual, msg...)
}

// NotEqual compares values using the comparison operator.
func NotEqual(tb assertions.TB, expected, actual interface{}, msg ...interface{}) {
	assertions.NotEqual(tb.Fatalf, expected, actual, msg...)
}

// DeepEqual compares values using reflect.DeepEqual.
func DeepEqual(tb assertions.TB, expected, actual interface{}, msg ...interface{}) {
	assertions.DeepEqual(tb.Fatalf, expected, actual, msg...)
}

// NoError asserts that the error is nil.
func NoError(tb assertions.TB, err error, msg ...interface{}) {
	assertions.NoError(tb.Fatalf, err, msg...)
}

// ErrorIs asserts that errors.Is(err, target) holds.
func ErrorIs(tb assertions.TB, target, err error, msg ...interface{}) {
	assertions.ErrorIs(tb.Fatalf, target, err, msg...)
}

// ErrorContains asserts that the error contains the wanted message.
func ErrorContains(tb assertions.TB, want string, err error, msg ...interface{}) {
	assertions.ErrorContains(tb.Fatalf, want, err, msg...)
}

// NotNil asserts that the passed value is not nil.
func NotNil(tb assertions.TB, obj interface{}, msg ...interface{}) {
	assertions.NotNil(tb.Fatalf, obj, msg...)
}

// StringContains asserts that actual contains the wanted substring.
func StringContains(tb assertions.TB, want, actual string, msg ...interface{}) {
	assertions.StringContains(tb.Fatalf, want, actual, true, msg...)
}

// LogsContain asserts that the test hook saw the wanted log message.
func LogsContain(tb assertions.TB, hook *test.Hook, want string, msg ...interface{}) {
	assertions.LogsContain(tb.Fatalf, hook, want, true, msg...)
}
