package shared

import (
	"context"
	"net/rpc"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
)

const PluginName = "transformer"

var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "I2V_TRANSFORM_PLUGIN",
	MagicCookieValue: "image-to-video",
}

var PluginMap = map[string]plugin.Plugin{
	PluginName: &TransformerPlugin{},
}

// TransformRequest carries everything a plugin needs to render one video. The
// plugin is already bound to its device when it is launched.
type TransformRequest struct {
	InputPath      string
	OutputPath     string
	Width          int
	Height         int
	FrameCount     int
	InferenceSteps int
	FPS            int
	Prompt         string
	NegativePrompt string
}

type TransformResponse struct {
	OutputPath string
}

// Transformer is the interface implemented by transform plugins.
type Transformer interface {
	Transform(req TransformRequest) (TransformResponse, error)
}

// TransformerPlugin serves a Transformer over both net/rpc and gRPC. Plugins
// written in Go can use either, other languages must use gRPC.
type TransformerPlugin struct {
	Impl Transformer
}

func (p *TransformerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (*TransformerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

func (p *TransformerPlugin) GRPCServer(broker *plugin.GRPCBroker, s *grpc.Server) error {
	RegisterTransformerServer(s, &GRPCServer{Impl: p.Impl})
	return nil
}

func (p *TransformerPlugin) GRPCClient(ctx context.Context, broker *plugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return &GRPCClient{conn: c}, nil
}

// Serve blocks serving impl to the host process. It is called from the main
// function of a plugin binary.
func Serve(impl Transformer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &TransformerPlugin{Impl: impl},
		},
		GRPCServer: plugin.DefaultGRPCServer,
	})
}
