package devices

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// VisibleDevicesEnv restricts the GPUs this process and its plugins may use.
// Plugins inherit it, so worker ordinals are relative to the visible set.
const VisibleDevicesEnv = "CUDA_VISIBLE_DEVICES"

// NvidiaSMI queries GPUs through the nvidia-smi command line tool.
type NvidiaSMI struct {
	path string
}

var _ Environment = (*NvidiaSMI)(nil)

func NewNvidiaSMI(path string) *NvidiaSMI {
	if path == "" {
		path = "nvidia-smi"
	}
	return &NvidiaSMI{path: path}
}

func (n *NvidiaSMI) query(ctx context.Context, fields string) (string, error) {
	cmd := exec.CommandContext(ctx, n.path, "--query-gpu="+fields, "--format=csv,noheader,nounits")

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("nvidia-smi failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return out.String(), nil
}

type gpu struct {
	index int
	uuid  string
}

// visible returns the physical indices of the usable GPUs, ordered by their
// ordinal inside this process. all is true when no restriction is set.
func (n *NvidiaSMI) visible(ctx context.Context) (indices []int, all bool, err error) {
	value, restricted := os.LookupEnv(VisibleDevicesEnv)
	if restricted && strings.TrimSpace(value) == "" {
		return nil, false, nil
	}

	out, err := n.query(ctx, "index,uuid")
	if err != nil {
		return nil, false, err
	}

	gpus, err := parseGPUs(out)
	if err != nil {
		return nil, false, err
	}

	if !restricted {
		indices = make([]int, 0, len(gpus))
		for _, g := range gpus {
			indices = append(indices, g.index)
		}
		return indices, true, nil
	}

	return resolveVisible(value, gpus), false, nil
}

func (n *NvidiaSMI) Count(ctx context.Context) (int, error) {
	indices, _, err := n.visible(ctx)
	if err != nil {
		return 0, err
	}
	return len(indices), nil
}

// Usage reports memory per visible device, numbered by worker ordinal.
func (n *NvidiaSMI) Usage(ctx context.Context) ([]Usage, error) {
	indices, all, err := n.visible(ctx)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, nil
	}

	out, err := n.query(ctx, "index,memory.used,memory.total")
	if err != nil {
		return nil, err
	}

	usages, err := parseUsage(out)
	if err != nil || all {
		return usages, err
	}

	byIndex := make(map[int]Usage, len(usages))
	for _, u := range usages {
		byIndex[u.Device] = u
	}

	visible := make([]Usage, 0, len(indices))
	for ordinal, idx := range indices {
		u, ok := byIndex[idx]
		if !ok {
			continue
		}
		u.Device = ordinal
		visible = append(visible, u)
	}

	return visible, nil
}

// resolveVisible maps the entries of CUDA_VISIBLE_DEVICES onto physical GPUs.
// Entries are indices or uuid prefixes. As with the CUDA runtime, the list
// ends at the first entry that matches no device or repeats one.
func resolveVisible(value string, gpus []gpu) []int {
	var indices []int
	seen := make(map[int]bool)

	for _, entry := range strings.Split(value, ",") {
		idx, ok := matchGPU(strings.TrimSpace(entry), gpus)
		if !ok || seen[idx] {
			break
		}
		seen[idx] = true
		indices = append(indices, idx)
	}

	return indices
}

func matchGPU(entry string, gpus []gpu) (int, bool) {
	if entry == "" {
		return 0, false
	}

	if n, err := strconv.Atoi(entry); err == nil {
		for _, g := range gpus {
			if g.index == n {
				return g.index, true
			}
		}
		return 0, false
	}

	for _, g := range gpus {
		if strings.HasPrefix(g.uuid, entry) || strings.HasPrefix(strings.TrimPrefix(g.uuid, "GPU-"), entry) {
			return g.index, true
		}
	}
	return 0, false
}

// parseGPUs parses lines like "0, GPU-5e1c0b4a-...".
func parseGPUs(out string) ([]gpu, error) {
	var gpus []gpu

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid nvidia-smi output: %s", line)
		}

		idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid nvidia-smi index %q in line %q: %w", fields[0], line, err)
		}

		gpus = append(gpus, gpu{index: idx, uuid: strings.TrimSpace(fields[1])})
	}

	return gpus, nil
}

// parseUsage parses lines like "0, 9277, 32607".
func parseUsage(out string) ([]Usage, error) {
	var usages []Usage

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("invalid nvidia-smi output: %s", line)
		}

		values := make([]int, 3)
		for i := range values {
			v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
			if err != nil {
				return nil, fmt.Errorf("invalid nvidia-smi value %q in line %q: %w", fields[i], line, err)
			}
			values[i] = v
		}

		usages = append(usages, Usage{Device: values[0], UsedMB: values[1], TotalMB: values[2]})
	}

	return usages, nil
}
