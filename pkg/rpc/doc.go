/*
Package rpc defines the wire contract for strata's Query service: typed
request/response structs and the three method interfaces KeyValue,
PrefixValue, and Watch. No protoc step runs in this exercise, so these are
hand-written Go structs shaped the way protoc-gen-go output would be, with
the same field names a generated type would carry; pkg/api registers a
google.golang.org/grpc server built around them and pkg/client dials it.
*/
package rpc
