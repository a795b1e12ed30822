// Package sysprobe reads point-in-time memory samples from the host. System
// RAM comes from gopsutil; GPU memory comes from an optional GPU prober that
// is skipped entirely on hosts without a usable GPU stack. The package has no
// state beyond probe capability detection; staleness tracking and threshold
// evaluation live in the guard package.
package sysprobe

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/mem"

	"memwatchd/pkg/types"
)

// Prober reads one system memory sample.
type Prober interface {
	Probe(ctx context.Context) (types.SystemMemoryInfo, error)
}

// GPUProber reads aggregate GPU memory. Available reports whether the host
// has a usable GPU stack at all; when it returns false the prober is never
// invoked and samples simply carry no GPU record.
type GPUProber interface {
	Available() bool
	Probe(ctx context.Context) (*types.GPUMemoryInfo, error)
}

// SystemProber samples host RAM and, when a GPU prober is present, attaches
// a GPU sub-record. A GPU probe failure degrades to a sample without the GPU
// record; only a RAM probe failure is an error.
type SystemProber struct {
	gpu GPUProber
}

// New builds a prober with GPU support auto-detected from the host.
func New() *SystemProber { return &SystemProber{gpu: DetectGPU()} }

// NewWithGPU builds a prober with an explicit GPU source. Pass nil to
// disable GPU sampling.
func NewWithGPU(gpu GPUProber) *SystemProber { return &SystemProber{gpu: gpu} }

func (p *SystemProber) Probe(ctx context.Context) (types.SystemMemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.SystemMemoryInfo{}, err
	}
	info := types.SystemMemoryInfo{
		TotalBytes:      vm.Total,
		UsedBytes:       vm.Used,
		AvailableBytes:  vm.Available,
		UsagePercentage: UsagePct(vm.Used, vm.Total),
		Platform:        runtime.GOOS,
		SampledAtUnix:   time.Now().Unix(),
	}
	if p.gpu != nil && p.gpu.Available() {
		if g, gerr := p.gpu.Probe(ctx); gerr == nil && g != nil {
			info.GPU = g
		}
	}
	return info, nil
}

// UsagePct derives a used percentage from raw byte counts, clamped to
// [0,100]. Zero total yields zero rather than NaN.
func UsagePct(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return ClampPct(float64(used) / float64(total) * 100)
}

// ClampPct bounds a percentage to [0,100]. Probe backends occasionally
// report transient values just outside the range.
func ClampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
