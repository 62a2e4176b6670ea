// Package stdio serves a provider.Runtime over stdin/stdout. It is the
// provider half of the child-process transport: the bridge spawns the
// provider binary and speaks newline-delimited JSON-RPC to it.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON-RPC message per line
//	Logging          : stderr only; stdout carries protocol frames
//
// Closing stdin is the graceful stop signal: the runtime stops accepting
// requests, drains in-flight calls and Serve returns.
//
// Example:
//
//	rt, err := taskprovider.New(store)
//	if err != nil { log.Fatal(err) }
//	h := stdio.NewHandler(rt)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
