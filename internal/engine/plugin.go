package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"

	"i2v-dispatch/plugin/shared"

	"github.com/hashicorp/go-plugin"
)

const outputFilename = "output.mp4"

type PluginConfig struct {
	Executable string
	Args       []string
	ModelName  string
}

// PluginModel runs a transform plugin as a subprocess pinned to one device.
// Killing the subprocess is how device memory is given back, so Release is
// the only cleanup the device needs.
type PluginModel struct {
	mu          sync.Mutex
	client      *plugin.Client
	transformer shared.Transformer
	device      int
}

var _ Model = (*PluginModel)(nil)

func DeviceName(device int) string {
	return fmt.Sprintf("cuda:%d", device)
}

// pluginCommand leaves Env unset so the plugin inherits CUDA_VISIBLE_DEVICES
// and device is an ordinal within the same visible set the count came from.
func pluginCommand(cfg PluginConfig, device int) *exec.Cmd {
	args := append([]string{}, cfg.Args...)
	args = append(args, "--device", DeviceName(device))
	if cfg.ModelName != "" {
		args = append(args, "--model-name", cfg.ModelName)
	}
	return exec.Command(cfg.Executable, args...)
}

func LoadPluginModel(cfg PluginConfig, device int) (*PluginModel, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: shared.Handshake,
		Plugins:         shared.PluginMap,
		Cmd:             pluginCommand(cfg, device),
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC, plugin.ProtocolGRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error establishing RPC connection: %w", err)
	}

	raw, err := rpcClient.Dispense(shared.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error dispensing '%s': %w", shared.PluginName, err)
	}

	transformer, ok := raw.(shared.Transformer)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("dispensed interface '%s' is not of expected type shared.Transformer (actual type: %T)", shared.PluginName, raw)
	}

	slog.Info("transform plugin started", "device", device, "executable", cfg.Executable, "model", cfg.ModelName)

	return &PluginModel{
		client:      client,
		transformer: transformer,
		device:      device,
	}, nil
}

func NewPluginLoader(cfg PluginConfig) Loader {
	return func(device int) (Model, error) {
		return LoadPluginModel(cfg, device)
	}
}

type transformResult struct {
	resp shared.TransformResponse
	err  error
}

// Transform blocks until the plugin has written the output. If ctx ends first
// the plugin is killed, which aborts the call.
func (m *PluginModel) Transform(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	transformer := m.transformer
	m.mu.Unlock()
	if transformer == nil {
		return "", fmt.Errorf("plugin for device %d has been released", m.device)
	}

	outputPath := filepath.Join(req.OutputDir, outputFilename)

	done := make(chan transformResult, 1)
	go func() {
		resp, err := transformer.Transform(shared.TransformRequest{
			InputPath:      req.InputPath,
			OutputPath:     outputPath,
			Width:          req.Params.Width,
			Height:         req.Params.Height,
			FrameCount:     req.Params.FrameCount,
			InferenceSteps: req.Params.InferenceSteps,
			FPS:            req.Params.FPS,
			Prompt:         req.Params.Prompt,
			NegativePrompt: req.Params.NegativePrompt,
		})
		done <- transformResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		m.Release()
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if res.resp.OutputPath != "" {
			outputPath = res.resp.OutputPath
		}
		return outputPath, nil
	}
}

func (m *PluginModel) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return
	}

	m.client.Kill()
	m.client = nil
	m.transformer = nil
	slog.Info("transform plugin released", "device", m.device)
}
