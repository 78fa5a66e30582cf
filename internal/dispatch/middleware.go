package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "pingkeeper/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := range m {
		h = m[len(m)-1-i](h)
	}
	return h
}

// MWTimeout bounds one handler run. d <= 0 disables it.
func MWTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error for the request log.
func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req.Logger.Error("handler panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs every request at debug, slow ones (>= slow) at info and
// failures at warn.
func MWRequestLog(slow time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			began := time.Now()
			err := next(ctx, req)
			took := time.Since(began)

			log := req.Logger.With(logx.Duration("took", took))
			if err != nil {
				log.Warn("request failed", logx.Err(err))
			} else if took >= slow {
				log.Info("request slow")
			} else {
				log.Debug("request done")
			}
			return err
		}
	}
}
