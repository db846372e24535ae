package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"numflow/internal/job"
)

// Client calls a remote numflow engine.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to target; with no options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

// DialPort connects to an engine on localhost.
func DialPort(port int) (*Client, error) {
	return Dial(fmt.Sprintf("localhost:%d", port))
}

func (c *Client) Transform(ctx context.Context, link string) (job.Result, error) {
	return c.invoke(ctx, methodTransform, map[string]any{"link": link})
}

func (c *Client) Inverse(ctx context.Context, transformedPath string) (job.Result, error) {
	return c.invoke(ctx, methodInverse, map[string]any{"transformedPath": transformedPath})
}

// Healthy reports whether the pipeline service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Close() error { return c.cc.Close() }

// invoke returns the decoded envelope; on a status error the envelope is
// recovered from the status details when the server attached one.
func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (job.Result, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return job.Result{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		for _, d := range status.Convert(err).Details() {
			if doc, ok := d.(*structpb.Struct); ok {
				res, derr := decodeResult(doc)
				if derr == nil {
					return res, err
				}
			}
		}
		return job.Result{Status: job.StatusError, Message: status.Convert(err).Message()}, err
	}
	return decodeResult(out)
}
