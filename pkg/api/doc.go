/*
Package api implements strata's gRPC Query server: a thin adapter that
registers rpc.QueryService's three methods — KeyValue, PrefixValue, Watch —
over a plain google.golang.org/grpc.Server, backed by a snapshot.Snapshot
taken fresh per call and the process-wide watch.Service.

# Architecture

	┌──────────────── CLIENT (pkg/client, cmd/stratad) ──────────────┐
	│  gRPC stub (no TLS — this store has no notion of identity;    │
	│  authenticating callers is the external collaborator's job)   │
	└─────────────────────────┬──────────────────────────────────────┘
	                          │ gRPC
	┌─────────────────────────▼──── strata process ──────────────────┐
	│  ┌────────────────────────────────────────────────────────┐   │
	│  │            Server (pkg/api)                             │   │
	│  │  - KeyValue / PrefixValue / Watch                        │   │
	│  │  - per-method RPC metrics via unary/stream interceptors  │   │
	│  └──────────────────────┬────────────────────────────────┘   │
	│                         │                                     │
	│           ┌─────────────┴─────────────┐                      │
	│   snapshot.Snapshot              watch.Service                │
	└──────────────────────────────────────────────────────────────┘

Business-logic chain-ID routing — dispatching a request across more than
one logical chain's store — belongs to the external collaborator embedding
this package; Server stubs it with a single-chain passthrough, so the
chainID argument on every method is accepted but otherwise unused.

HealthServer exposes liveness/readiness/metrics HTTP endpoints, with
readiness checked against backend openness; the latest version is
reported in the readiness response but not checked.
*/
package api
