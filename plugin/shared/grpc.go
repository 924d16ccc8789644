package shared

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service is described by hand instead of generated from a .proto file.
// Requests and responses are google.protobuf.Struct messages so that a plugin
// in any language only needs the well-known types:
//
//	service Transformer {
//	  rpc Transform(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
const (
	transformerServiceName = "plugin.Transformer"
	transformMethod        = "/plugin.Transformer/Transform"
)

type GRPCTransformerServer interface {
	Transform(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var transformerServiceDesc = grpc.ServiceDesc{
	ServiceName: transformerServiceName,
	HandlerType: (*GRPCTransformerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transform",
			Handler:    transformHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "transformer.proto",
}

func RegisterTransformerServer(s grpc.ServiceRegistrar, srv GRPCTransformerServer) {
	s.RegisterService(&transformerServiceDesc, srv)
}

func transformHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GRPCTransformerServer).Transform(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: transformMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GRPCTransformerServer).Transform(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCClient is an implementation of Transformer that talks over gRPC.
type GRPCClient struct{ conn grpc.ClientConnInterface }

func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (m *GRPCClient) Transform(req TransformRequest) (TransformResponse, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"input_path":      req.InputPath,
		"output_path":     req.OutputPath,
		"width":           req.Width,
		"height":          req.Height,
		"frame_count":     req.FrameCount,
		"inference_steps": req.InferenceSteps,
		"fps":             req.FPS,
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
	})
	if err != nil {
		return TransformResponse{}, fmt.Errorf("error encoding transform request: %w", err)
	}

	out := new(structpb.Struct)
	if err := m.conn.Invoke(context.Background(), transformMethod, in, out); err != nil {
		return TransformResponse{}, err
	}

	return TransformResponse{OutputPath: out.GetFields()["output_path"].GetStringValue()}, nil
}

// Here is the gRPC server that GRPCClient talks to.
type GRPCServer struct {
	// This is the real implementation
	Impl Transformer
}

func (m *GRPCServer) Transform(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	req := TransformRequest{
		InputPath:      fields["input_path"].GetStringValue(),
		OutputPath:     fields["output_path"].GetStringValue(),
		Width:          int(fields["width"].GetNumberValue()),
		Height:         int(fields["height"].GetNumberValue()),
		FrameCount:     int(fields["frame_count"].GetNumberValue()),
		InferenceSteps: int(fields["inference_steps"].GetNumberValue()),
		FPS:            int(fields["fps"].GetNumberValue()),
		Prompt:         fields["prompt"].GetStringValue(),
		NegativePrompt: fields["negative_prompt"].GetStringValue(),
	}

	resp, err := m.Impl.Transform(req)
	if err != nil {
		return nil, err
	}

	return structpb.NewStruct(map[string]interface{}{"output_path": resp.OutputPath})
}
