package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

// Remote queries behind ResourceStats.
const (
	cpuQuery    = `top -bn1 | grep '%Cpu' | awk '{print 100 - $8}'`
	memQuery    = `free -b | awk 'NR==2 { printf "%f %f", $3, $2 }'`
	diskQuery   = `df -B1 / | awk 'NR==2 { printf "%f %f", $3, $2 }'`
	uptimeQuery = `uptime -p`
)

// ResourceStats gathers CPU, memory, disk and uptime from the running host.
// The four queries run concurrently; any failure fails the whole snapshot.
func (o *Orchestrator) ResourceStats(ctx context.Context) (domain.ResourceStats, error) {
	var stats domain.ResourceStats

	if o.Status(ctx) == domain.Offline {
		return stats, fmt.Errorf("%w: cannot collect stats", domain.ErrHostOffline)
	}

	var cpuRaw, memRaw, diskRaw, uptimeRaw string
	g, gctx := errgroup.WithContext(ctx)
	query := func(dst *string, cmd string) {
		g.Go(func() error {
			out, err := o.exec.Execute(gctx, cmd)
			if err != nil {
				return err
			}
			*dst = out
			return nil
		})
	}
	query(&cpuRaw, cpuQuery)
	query(&memRaw, memQuery)
	query(&diskRaw, diskQuery)
	query(&uptimeRaw, uptimeQuery)

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("collect stats: %w", err)
	}

	cpu, err := strconv.ParseFloat(strings.TrimSpace(cpuRaw), 64)
	if err != nil {
		return stats, fmt.Errorf("parse cpu %q: %w", cpuRaw, err)
	}
	memUsed, memTotal, err := parsePair(memRaw)
	if err != nil {
		return stats, fmt.Errorf("parse memory: %w", err)
	}
	diskUsed, diskTotal, err := parsePair(diskRaw)
	if err != nil {
		return stats, fmt.Errorf("parse disk: %w", err)
	}

	stats.CPUPercent = cpu
	stats.MemUsedBytes, stats.MemTotalBytes = memUsed, memTotal
	stats.DiskUsedBytes, stats.DiskTotalBytes = diskUsed, diskTotal
	stats.Uptime = strings.TrimPrefix(strings.TrimSpace(uptimeRaw), "up ")
	return stats, nil
}

// parsePair reads "used total" as printed by the awk queries.
func parsePair(raw string) (uint64, uint64, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("want 2 fields, got %q", raw)
	}
	used, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, err
	}
	total, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, err
	}
	if used < 0 || total < 0 {
		return 0, 0, fmt.Errorf("negative value in %q", raw)
	}
	return uint64(used), uint64(total), nil
}
