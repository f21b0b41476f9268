// Package client drives a long-lived search-engine worker process over its
// framed symbolic-expression protocol.
//
// An Engine owns one worker at a time. Call serializes a command name and
// keyword arguments to one wire line, reads length-prefixed response frames,
// decodes them and returns a canonical value:
//
//	nil, bool, int64, float64, string, []any, map[string]any
//
// Commands are resolved through a Registry that declares each command's
// response policy: a single frame, or a stream of frames that ends when a
// frame reports status "complete". Only the terminal frame is returned.
//
// When the worker exits unexpectedly the in-flight call fails and the engine
// relaunches the worker before returning, so later calls proceed normally.
//
// An Engine is not safe for concurrent use. One call may be in flight at a
// time; callers that share an engine must serialize access themselves.
package client
