package resilience

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Recover stops a panic in the calling goroutine and passes it to onPanic
// as an error. It must be deferred directly:
//
//	defer resilience.Recover("gate1: verify", func(err error) { ... })
func Recover(op string, onPanic func(error)) {
	r := recover()
	if r == nil {
		return
	}
	err := eris.Errorf("%s: panic: %v", op, r)
	zap.L().Error("resilience: recovered panic", zap.String("op", op), zap.Error(err), zap.Stack("stack"))
	if onPanic != nil {
		onPanic(err)
	}
}
