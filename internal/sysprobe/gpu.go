package sysprobe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"memwatchd/pkg/types"
)

// NvidiaSMI samples GPU memory by invoking nvidia-smi in query mode. Query
// mode is the lowest common denominator across driver generations; hosts
// without the binary report Available() == false and are never probed.
type NvidiaSMI struct {
	bin string

	once sync.Once
	ok   bool
}

// DetectGPU returns a GPU prober for the host, or nil when no supported GPU
// tooling is installed.
func DetectGPU() GPUProber {
	smi := &NvidiaSMI{}
	if !smi.Available() {
		return nil
	}
	return smi
}

func (p *NvidiaSMI) Available() bool {
	p.once.Do(func() {
		bin := p.bin
		if bin == "" {
			bin = "nvidia-smi"
		}
		path, err := exec.LookPath(bin)
		if err != nil {
			return
		}
		p.bin = path
		p.ok = true
	})
	return p.ok
}

func (p *NvidiaSMI) Probe(ctx context.Context) (*types.GPUMemoryInfo, error) {
	if !p.Available() {
		return nil, fmt.Errorf("nvidia-smi not available on this host")
	}
	out, err := exec.CommandContext(ctx, p.bin,
		"--query-gpu=index,name,memory.used,memory.total,utilization.gpu",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi query failed: %w", err)
	}
	return parseSMIOutput(out)
}

// parseSMIOutput aggregates one nvidia-smi CSV response into a GPUMemoryInfo.
func parseSMIOutput(out []byte) (*types.GPUMemoryInfo, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	info := &types.GPUMemoryInfo{}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		dev, err := parseSMILine(line)
		if err != nil {
			return nil, err
		}
		info.Devices = append(info.Devices, dev)
		info.TotalBytes += dev.MemoryTotalBytes
		info.UsedBytes += dev.MemoryUsedBytes
	}
	if len(info.Devices) == 0 {
		return nil, fmt.Errorf("nvidia-smi reported no devices")
	}
	info.AvailableBytes = info.TotalBytes - info.UsedBytes
	info.UsagePercentage = UsagePct(info.UsedBytes, info.TotalBytes)
	return info, nil
}

// parseSMILine parses one "index, name, used, total, util" row. Memory
// columns arrive in MiB under --format=nounits.
func parseSMILine(line string) (types.GPUDeviceUtil, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return types.GPUDeviceUtil{}, fmt.Errorf("malformed nvidia-smi row: %q", line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return types.GPUDeviceUtil{}, fmt.Errorf("bad gpu index in %q: %w", line, err)
	}
	usedMiB, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return types.GPUDeviceUtil{}, fmt.Errorf("bad gpu memory.used in %q: %w", line, err)
	}
	totalMiB, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return types.GPUDeviceUtil{}, fmt.Errorf("bad gpu memory.total in %q: %w", line, err)
	}
	util, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return types.GPUDeviceUtil{}, fmt.Errorf("bad gpu utilization in %q: %w", line, err)
	}
	return types.GPUDeviceUtil{
		Index:            idx,
		Name:             parts[1],
		MemoryUsedBytes:  usedMiB << 20,
		MemoryTotalBytes: totalMiB << 20,
		UtilizationPct:   ClampPct(util),
	}, nil
}
