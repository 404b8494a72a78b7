package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/duskbridge/strata/pkg/rpc"
)

const defaultCallTimeout = 10 * time.Second

// Client wraps a gRPC connection to a strata Query server.
type Client struct {
	conn *grpc.ClientConn
}

// New dials addr and returns a Client. The connection carries no transport
// credentials: the Query service has no notion of caller identity, so
// authenticating the channel (if needed at all) is left to the network
// layer the embedding deployment runs over.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpc.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultCallTimeout)
}

// KeyValue looks up key in chainID's store, optionally with a two-level
// Merkle proof.
func (c *Client) KeyValue(ctx context.Context, chainID, key string, withProof bool) (*rpc.KeyValueResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	req := &rpc.KeyValueRequest{ChainID: chainID, Key: key, WithProof: withProof}
	resp := new(rpc.KeyValueResponse)
	if err := c.conn.Invoke(ctx, "/strata.Query/KeyValue", req, resp); err != nil {
		return nil, fmt.Errorf("client: key_value %q: %w", key, err)
	}
	return resp, nil
}

// PrefixValue streams every key/value pair under prefix from a single fixed
// snapshot on the server, in key order. The returned channel is closed when
// the stream ends or ctx is done.
func (c *Client) PrefixValue(ctx context.Context, chainID, prefix string) (<-chan *rpc.KeyValueEntry, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "PrefixValue", ServerStreams: true}, "/strata.Query/PrefixValue")
	if err != nil {
		return nil, fmt.Errorf("client: prefix_value %q: %w", prefix, err)
	}
	if err := stream.SendMsg(&rpc.PrefixValueRequest{ChainID: chainID, Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("client: prefix_value %q: send request: %w", prefix, err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("client: prefix_value %q: close send: %w", prefix, err)
	}

	out := make(chan *rpc.KeyValueEntry, 64)
	go func() {
		defer close(out)
		for {
			e := new(rpc.KeyValueEntry)
			if err := stream.RecvMsg(e); err != nil {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Watch subscribes to key/non-verifiable-key updates matching keyRegex and
// nvKeyRegex. The returned channel is closed when the stream ends or ctx is
// done.
func (c *Client) Watch(ctx context.Context, keyRegex, nvKeyRegex string) (<-chan *rpc.WatchEntry, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}, "/strata.Query/Watch")
	if err != nil {
		return nil, fmt.Errorf("client: watch: %w", err)
	}
	if err := stream.SendMsg(&rpc.WatchRequest{KeyRegex: keyRegex, NvKeyRegex: nvKeyRegex}); err != nil {
		return nil, fmt.Errorf("client: watch: send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("client: watch: close send: %w", err)
	}

	out := make(chan *rpc.WatchEntry, 64)
	go func() {
		defer close(out)
		for {
			e := new(rpc.WatchEntry)
			if err := stream.RecvMsg(e); err != nil {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
