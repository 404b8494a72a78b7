package api

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/log"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/rpc"
	"github.com/duskbridge/strata/pkg/snapshot"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/watch"
)

// Server implements rpc.QueryService as a gRPC service registered on a
// plain grpc.Server (no TLS: this store has no notion of caller identity,
// and authenticating callers is left to the embedding process).
type Server struct {
	backend  *storage.Backend
	registry *registry.Registry
	engine   *jmt.Engine
	watch    *watch.Service
	grpc     *grpc.Server
}

var _ rpc.QueryService = (*Server)(nil)

// NewServer wires a Server to the given backend, registry, JMT engine, and
// watch service, and constructs its gRPC server with the rpc.Codec JSON
// codec and metrics interceptors installed.
func NewServer(backend *storage.Backend, reg *registry.Registry, engine *jmt.Engine, w *watch.Service) *Server {
	s := &Server{backend: backend, registry: reg, engine: engine, watch: w}
	s.grpc = grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(metricsInterceptor),
		grpc.ChainStreamInterceptor(streamMetricsInterceptor),
	)
	s.grpc.RegisterService(&queryServiceDesc, s)
	return s
}

// Start listens on addr and serves until Stop is called or the listener
// errors.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}
	log.Logger.Info().Str("addr", addr).Msg("query server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// head returns a Snapshot pinned to the backend's current latest version.
// KeyValue and PrefixValue each take their own fresh head, so a slow
// PrefixValue stream never pins the backend at a version other callers can
// no longer prune past. Watch reads from the watch service and takes no
// snapshot.
func (s *Server) head() *snapshot.Snapshot {
	return snapshot.New(s.backend, s.registry, s.engine, s.backend.LatestVersion())
}

// KeyValue implements rpc.QueryService. chainID is accepted but unused:
// chain-ID routing across more than one logical store is the embedding
// process's responsibility, and this Server always answers from its own
// single backend.
func (s *Server) KeyValue(ctx context.Context, chainID, key string, withProof bool) (*rpc.KeyValueResponse, error) {
	snap := s.head()
	defer snap.Release()

	if !withProof {
		value, err := snap.GetRaw(ctx, []byte(key))
		if err != nil {
			return nil, err
		}
		return &rpc.KeyValueResponse{Value: value, Found: value != nil}, nil
	}

	value, proof, err := snap.GetWithProof(ctx, []byte(key))
	if err != nil {
		return nil, err
	}
	resp := &rpc.KeyValueResponse{Value: value, Found: value != nil}
	if proof != nil {
		resp.Inner = proof.Inner
		resp.Outer = proof.Outer
	}
	return resp, nil
}

// PrefixValue implements rpc.QueryService, streaming every key/value pair
// under prefix from a single fixed snapshot in key order.
func (s *Server) PrefixValue(ctx context.Context, chainID, prefix string) (<-chan *rpc.KeyValueEntry, error) {
	snap := s.head()
	out := make(chan *rpc.KeyValueEntry, 64)

	go func() {
		defer snap.Release()
		defer close(out)
		err := snap.PrefixRaw(ctx, []byte(prefix), func(fullKey, value []byte) error {
			select {
			case out <- &rpc.KeyValueEntry{Key: string(fullKey), Value: value}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Logger.Warn().Err(err).Str("prefix", prefix).Msg("prefix_value: scan ended early")
		}
	}()

	return out, nil
}

// Watch implements rpc.QueryService, relaying watch.Service entries
// matching keyRegex/nvKeyRegex until ctx is done.
func (s *Server) Watch(ctx context.Context, keyRegex, nvKeyRegex string) (<-chan *rpc.WatchEntry, error) {
	entries, cancel, err := s.watch.Subscribe(keyRegex, nvKeyRegex)
	if err != nil {
		return nil, err
	}

	out := make(chan *rpc.WatchEntry, 64)
	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				we := &rpc.WatchEntry{Version: uint64(e.Version)}
				switch {
				case e.KV != nil:
					we.Key, we.Value, we.Deleted = e.KV.Key, e.KV.Value, e.KV.Deleted
				case e.NvKV != nil:
					we.NvKey, we.Value, we.Deleted = e.NvKV.Key, e.NvKV.Value, e.NvKV.Deleted
				}
				select {
				case out <- we:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
