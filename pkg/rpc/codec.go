package rpc

import "encoding/json"

// Codec is a minimal encoding.Codec standing in for protoc-gen-go's
// generated protobuf codec, since no protoc step runs in this exercise. It
// marshals the structs in this package as JSON instead of wire-format
// protobuf. Server and client must install the same Codec (via
// grpc.ForceServerCodec / grpc.ForceCodec) since neither side negotiates
// gRPC's usual "proto" content-subtype.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)     { return json.Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (Codec) Name() string                       { return "strata-json" }
