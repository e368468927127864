package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// Collector samples host metrics for heartbeat reports.
type Collector struct {
	logger *zap.Logger
}

// New creates a collector.
func New(logger *zap.Logger) *Collector {
	return &Collector{logger: logger}
}

// Collect samples CPU, memory and volume usage. Partial failures degrade
// the snapshot rather than failing it; a heartbeat with missing metrics
// still proves liveness.
func (c *Collector) Collect(ctx context.Context) *types.MetricsSnapshot {
	snapshot := &types.MetricsSnapshot{CollectedAt: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		c.logger.Debug("CPU sample failed", zap.Error(err))
	} else if len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Debug("Memory sample failed", zap.Error(err))
	} else {
		snapshot.MemoryPercent = vm.UsedPercent
	}

	snapshot.Volumes = c.collectVolumes(ctx)
	return snapshot
}

func (c *Collector) collectVolumes(ctx context.Context) []types.DiskUsage {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		c.logger.Debug("Partition list failed", zap.Error(err))
		return nil
	}

	var volumes []types.DiskUsage
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		volumes = append(volumes, types.DiskUsage{
			Mount:       p.Mountpoint,
			TotalBytes:  usage.Total,
			UsedBytes:   usage.Used,
			UsedPercent: usage.UsedPercent,
		})
	}
	return volumes
}
