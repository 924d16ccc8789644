package shared

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type recordingTransformer struct {
	got TransformRequest
	err error
}

func (r *recordingTransformer) Transform(req TransformRequest) (TransformResponse, error) {
	r.got = req
	if r.err != nil {
		return TransformResponse{}, r.err
	}
	return TransformResponse{OutputPath: req.OutputPath}, nil
}

func startBufconnServer(t *testing.T, impl Transformer) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	RegisterTransformerServer(server, &GRPCServer{Impl: impl})
	go server.Serve(lis) // nolint:errcheck
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet", // nolint:staticcheck
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewGRPCClient(conn)
}

func TestGRPCTransform(t *testing.T) {
	impl := &recordingTransformer{}
	client := startBufconnServer(t, impl)

	req := TransformRequest{
		InputPath:      "/tmp/job/input.png",
		OutputPath:     "/tmp/job/output.mp4",
		Width:          832,
		Height:         480,
		FrameCount:     241,
		InferenceSteps: 75,
		FPS:            24,
		Prompt:         "make this image a realistic video",
		NegativePrompt: "blurry",
	}

	resp, err := client.Transform(req)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/job/output.mp4", resp.OutputPath)
	assert.Equal(t, req, impl.got)
}

func TestGRPCTransformError(t *testing.T) {
	client := startBufconnServer(t, &recordingTransformer{err: errors.New("CUDA out of memory")})

	_, err := client.Transform(TransformRequest{InputPath: "in.png", OutputPath: "out.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}
