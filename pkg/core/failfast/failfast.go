// Package failfast turns programmer errors into panics at the call site.
//
// It is used where a condition can only be false because the caller misused an
// API (a nil job, a submit after shutdown), never for runtime conditions such as
// a full queue or a closed connection.
package failfast

import (
	"fmt"
	"reflect"
	"runtime/debug"
)

// Err panics with err and the current stack when err is not nil.
func Err(err error) {
	if err != nil {
		panic(fmt.Errorf("fail-fast: %w\n%s", err, debug.Stack()))
	}
}

// If panics with the formatted message unless condition holds.
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("fail-fast: "+message, args...))
	}
}

// NotNil panics if ptr is nil, including a typed nil pointer, func, map or
// channel stored in the interface.
func NotNil(ptr interface{}, name string) {
	if ptr == nil {
		panic(fmt.Errorf("fail-fast: %s is nil", name))
	}
	v := reflect.ValueOf(ptr)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panic(fmt.Errorf("fail-fast: %s is nil", name))
		}
	}
}
