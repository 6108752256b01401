package assert

import (
	"fmt"
	"reflect"
	"runtime"
)

// NotCircular panics when the calling function already appears further up the
// stack. Singleton constructors call it to catch initialization cycles early.
func NotCircular() {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	first, more := frames.Next()
	caller := first.Function
	for more {
		var f runtime.Frame
		f, more = frames.Next()
		if f.Function == caller {
			panic(fmt.Sprintf("circular initialization detected in %s", caller))
		}
	}
}

// NotNil panics if v is nil or a typed nil pointer/interface.
func NotNil(v interface{}) {
	if isNil(v) {
		panic("unexpected nil value")
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
