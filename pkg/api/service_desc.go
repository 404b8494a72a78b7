package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/duskbridge/strata/pkg/rpc"
)

// queryServiceDesc describes strata's Query gRPC service in the shape
// protoc-gen-go-grpc would emit from a .proto file defining KeyValue as a
// unary RPC and PrefixValue/Watch as server-streaming RPCs. HandlerType is
// the empty interface rather than a generated per-service interface: the
// handlers below dispatch onto *Server's ergonomic methods directly
// instead of through a generated method set, so there is no narrower
// interface for grpc's registration-time assertion to check against.
var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: "strata.Query",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "KeyValue", Handler: keyValueHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "PrefixValue", Handler: prefixValueHandler, ServerStreams: true},
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "strata/query.proto",
}

func keyValueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(rpc.KeyValueRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).KeyValue(ctx, req.ChainID, req.Key, req.WithProof)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/strata.Query/KeyValue"}
	handler := func(ctx context.Context, req any) (any, error) {
		r := req.(*rpc.KeyValueRequest)
		return srv.(*Server).KeyValue(ctx, r.ChainID, r.Key, r.WithProof)
	}
	return interceptor(ctx, req, info, handler)
}

func prefixValueHandler(srv any, stream grpc.ServerStream) error {
	req := new(rpc.PrefixValueRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	entries, err := srv.(*Server).PrefixValue(stream.Context(), req.ChainID, req.Prefix)
	if err != nil {
		return err
	}
	for e := range entries {
		if err := stream.SendMsg(e); err != nil {
			return err
		}
	}
	return nil
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(rpc.WatchRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	entries, err := srv.(*Server).Watch(stream.Context(), req.KeyRegex, req.NvKeyRegex)
	if err != nil {
		return err
	}
	for e := range entries {
		if err := stream.SendMsg(e); err != nil {
			return err
		}
	}
	return nil
}
