package shared

import (
	"net/rpc"
)

// RPCClient is an implementation of Transformer that talks over RPC.
type RPCClient struct{ client *rpc.Client }

func (m *RPCClient) Transform(req TransformRequest) (TransformResponse, error) {
	var resp TransformResponse
	err := m.client.Call("Plugin.Transform", req, &resp)
	return resp, err
}

// Here is the RPC server that RPCClient talks to, conforming to
// the requirements of net/rpc
type RPCServer struct {
	// This is the real implementation
	Impl Transformer
}

func (m *RPCServer) Transform(req TransformRequest, resp *TransformResponse) error {
	v, err := m.Impl.Transform(req)
	*resp = v
	return err
}
