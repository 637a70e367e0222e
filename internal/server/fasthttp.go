package server

import (
	"net"

	"github.com/valyala/fasthttp"
)

// ConnStateHook adapts fasthttp connection state callbacks to a ConnRegistry.
// Install it on the server returned by fiber's App.Server().
func ConnStateHook(reg *ConnRegistry) func(net.Conn, fasthttp.ConnState) {
	return func(conn net.Conn, state fasthttp.ConnState) {
		switch state {
		case fasthttp.StateNew:
			reg.Track(conn)
		case fasthttp.StateActive:
			reg.SetIdle(conn, false)
		case fasthttp.StateIdle:
			reg.SetIdle(conn, true)
		case fasthttp.StateHijacked, fasthttp.StateClosed:
			reg.Untrack(conn)
		}
	}
}
