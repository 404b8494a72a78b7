/*
Package client provides a Go client library for strata's Query gRPC
service.

The client wraps the hand-written Query service (pkg/rpc, pkg/api) with a
convenient, idiomatic Go interface, mirroring rpc.QueryService on the wire
but exposing request/response shapes more natural to call from Go:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                              │
	│  import "github.com/duskbridge/strata/pkg/client"           │
	│                                                              │
	│  c, err := client.New("query:8081")                         │
	│  resp, err := c.KeyValue(ctx, "", "ibc/key_1", true)         │
	│                                                              │
	└──────────────────┬───────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                              │
	│  Client wraps a *grpc.ClientConn dialed with                │
	│  insecure.NewCredentials() (this store has no caller         │
	│  identity) and rpc.Codec{} forced via grpc.ForceCodec,       │
	│  since the server side has no generated protobuf codec to    │
	│  negotiate against.                                          │
	│                                                              │
	└─────────────────────┬────────────────────────────────────┘
	                      │ gRPC (strata.Query)
	                      ▼
	                 pkg/api.Server

Every call takes a context.Context for cancellation and deadline
propagation; the unary KeyValue call additionally applies a default
per-call timeout when the caller's context carries none. The PrefixValue
and Watch streams get no default timeout: they run until the stream ends
or the caller's context is done.
*/
package client
