package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"numflow/internal/job"
	"numflow/internal/logging"
)

const ServiceName = "numflow.v1.Pipeline"

const (
	methodTransform = "/" + ServiceName + "/Transform"
	methodInverse   = "/" + ServiceName + "/InverseTransform"
)

// Pipeline is what the service calls into; *pipeline.Runner satisfies it.
type Pipeline interface {
	Transform(ctx context.Context, link string) (job.Result, error)
	Inverse(ctx context.Context, transformedPath string) (job.Result, error)
}

// PipelineServer is the server side of numflow.v1.Pipeline. Requests and
// replies are google.protobuf.Struct documents shaped like job.Result.
type PipelineServer interface {
	Transform(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InverseTransform(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var PipelineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transform", Handler: unary(methodTransform, PipelineServer.Transform)},
		{MethodName: "InverseTransform", Handler: unary(methodInverse, PipelineServer.InverseTransform)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "numflow/v1/pipeline.proto",
}

func unary(full string, call func(PipelineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PipelineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PipelineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type service struct{ p Pipeline }

func (s *service) Transform(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	link := field(in, "link", "drive_link")
	if link == "" {
		return nil, status.Error(codes.InvalidArgument, "link is required")
	}
	return reply(s.p.Transform(ctx, link))
}

func (s *service) InverseTransform(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	path := field(in, "transformedPath", "transformed_file_path")
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "transformedPath is required")
	}
	return reply(s.p.Inverse(ctx, path))
}

// field returns the first non-empty string among keys.
func field(in *structpb.Struct, keys ...string) string {
	for _, k := range keys {
		if v, ok := in.GetFields()[k]; ok && v.GetStringValue() != "" {
			return v.GetStringValue()
		}
	}
	return ""
}

// reply turns a pipeline outcome into a response. Failed jobs become a
// status error carrying the envelope as a detail.
func reply(res job.Result, err error) (*structpb.Struct, error) {
	doc, cerr := encodeResult(res)
	if cerr != nil {
		return nil, status.Error(codes.Internal, cerr.Error())
	}
	if err == nil {
		return doc, nil
	}
	st := status.New(Code(job.Classify(err)), err.Error())
	if withDoc, derr := st.WithDetails(doc); derr == nil {
		st = withDoc
	}
	return nil, st.Err()
}

// Code maps a fault class onto a gRPC status code.
func Code(f job.Fault) codes.Code {
	switch f {
	case job.FaultNone:
		return codes.OK
	case job.FaultClient:
		return codes.InvalidArgument
	case job.FaultNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

func encodeResult(res job.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func decodeResult(s *structpb.Struct) (job.Result, error) {
	var res job.Result
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return res, fmt.Errorf("transport: decode result: %w", err)
	}
	return res, nil
}

// logUnary records one line per call.
func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logging.With("grpc").Info("call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"elapsed", time.Since(start))
	return resp, err
}
