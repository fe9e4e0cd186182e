// Package middleware decorates trace sinks before events leave the process.
package middleware

import "github.com/aretw0/ragloop/pkg/ports"

// Middleware allows wrapping a TraceSink to add behavior.
type Middleware func(ports.TraceSink) ports.TraceSink

// Chain applies middlewares so that the first one sees events first.
func Chain(sink ports.TraceSink, mws ...Middleware) ports.TraceSink {
	for i := len(mws) - 1; i >= 0; i-- {
		sink = mws[i](sink)
	}
	return sink
}
