// Package resources samples host and container resource usage for the
// metrics half of an agent report (§4.1.4). Host figures come from
// /proc (meminfo, loadavg, the root filesystem), container figures
// from the Docker stats endpoint.
package resources

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/docker"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// Sampler reads host and container resource usage.
type Sampler struct {
	docker   docker.API
	ProcRoot string
	RootFS   string

	prevCPU    cpuSample
	prevCPUSet bool
}

type cpuSample struct {
	idle, total uint64
}

// New creates a Sampler rooted at the standard /proc and / paths.
func New(d docker.API) *Sampler {
	return &Sampler{docker: d, ProcRoot: "/proc", RootFS: "/"}
}

// SampleHost reads current host resource usage. CPU percent is
// computed from the delta between this call and the previous one; the
// first call in a process's lifetime reports 0 (§4.1.4 edge case).
func (s *Sampler) SampleHost(hostID string) model.HostMetricsPoint {
	p := model.HostMetricsPoint{HostID: hostID, Timestamp: time.Now().UTC()}

	if sample, ok := s.readCPU(); ok {
		if s.prevCPUSet {
			p.CPUPercent = cpuPercent(s.prevCPU, sample)
		}
		s.prevCPU = sample
		s.prevCPUSet = true
	}
	p.CPUCount = s.cpuCount()

	if l1, l5, l15, ok := s.readLoadAvg(); ok {
		p.Load1, p.Load5, p.Load15 = int(l1*100), int(l5*100), int(l15*100)
	}

	if total, used, ok := s.readMemInfo(); ok {
		p.MemTotalMB, p.MemUsedMB = int(total/1024/1024), int(used/1024/1024)
		if total > 0 {
			p.MemPercent = int(used * 100 / total)
		}
	}

	if total, used, ok := s.readDiskUsage(); ok {
		p.DiskTotalMB, p.DiskUsedMB = int(total/1024/1024), int(used/1024/1024)
		if total > 0 {
			p.DiskPercent = int(used * 100 / total)
		}
	}

	rx, tx := s.readNetTotals()
	p.NetRxBytes, p.NetTxBytes = rx, tx

	return p
}

func (s *Sampler) readCPU() (cpuSample, bool) {
	f, err := os.Open(s.ProcRoot + "/stat")
	if err != nil {
		return cpuSample{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuSample{}, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSample{}, false
	}

	var total, idle uint64
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		total += v
		if i == 3 { // idle field
			idle = v
		}
	}
	return cpuSample{idle: idle, total: total}, true
}

func cpuPercent(prev, cur cpuSample) int {
	totalDelta := cur.total - prev.total
	idleDelta := cur.idle - prev.idle
	if totalDelta == 0 {
		return 0 // divide-by-zero guard (§4.1.4 edge case)
	}
	busy := totalDelta - idleDelta
	return int(busy * 100 / totalDelta)
}

func (s *Sampler) cpuCount() int {
	f, err := os.Open(s.ProcRoot + "/cpuinfo")
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "processor") {
			n++
		}
	}
	return n
}

func (s *Sampler) readLoadAvg() (l1, l5, l15 float64, ok bool) {
	data, err := os.ReadFile(s.ProcRoot + "/loadavg")
	if err != nil {
		return 0, 0, 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0, false
	}
	l1, err1 := strconv.ParseFloat(fields[0], 64)
	l5, err2 := strconv.ParseFloat(fields[1], 64)
	l15, err3 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return l1, l5, l15, true
}

func (s *Sampler) readMemInfo() (total, used uint64, ok bool) {
	f, err := os.Open(s.ProcRoot + "/meminfo")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	vals := map[string]uint64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		vals[key] = v * 1024 // kB -> bytes
	}
	total, hasTotal := vals["MemTotal"]
	avail, hasAvail := vals["MemAvailable"]
	if !hasTotal {
		return 0, 0, false
	}
	if !hasAvail {
		avail = vals["MemFree"] + vals["Buffers"] + vals["Cached"]
	}
	if avail > total {
		avail = total
	}
	return total, total - avail, true
}

func (s *Sampler) readDiskUsage() (total, used uint64, ok bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.RootFS, &stat); err != nil {
		return 0, 0, false
	}
	total = stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	return total, total - free, true
}

func (s *Sampler) readNetTotals() (rx, tx int64) {
	f, err := os.Open(s.ProcRoot + "/net/dev")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		iface := strings.TrimSpace(parts[0])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			rx += v
		}
		if v, err := strconv.ParseInt(fields[8], 10, 64); err == nil {
			tx += v
		}
	}
	return rx, tx
}

// SampleContainer reads a single non-streaming stats sample for one
// container via the Docker stats endpoint. Missing fields in the
// response are left as zero values rather than erroring (§4.1.4).
func (s *Sampler) SampleContainer(ctx context.Context, hostID, shortID, dockerID string) (model.ContainerMetricsPoint, error) {
	stats, err := s.docker.ContainerStatsOnce(ctx, dockerID)
	if err != nil {
		return model.ContainerMetricsPoint{}, err
	}

	p := model.ContainerMetricsPoint{
		HostID:    hostID,
		ShortID:   shortID,
		Timestamp: time.Now().UTC(),
	}

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage)
	onlineCPUs := float64(stats.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	if systemDelta > 0 && cpuDelta > 0 && onlineCPUs > 0 {
		p.CPUPercentHundredths = int(cpuDelta / systemDelta * onlineCPUs * 10000)
	}

	p.MemUsedMB = int(stats.MemoryStats.Usage / 1024 / 1024)
	p.MemLimitMB = int(stats.MemoryStats.Limit / 1024 / 1024)
	if stats.MemoryStats.Limit > 0 {
		p.MemPercentHundredths = int(float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 10000)
	}

	for _, net := range stats.Networks {
		p.NetRxBytes += int64(net.RxBytes)
		p.NetTxBytes += int64(net.TxBytes)
	}

	for _, be := range stats.BlkioStats.IoServiceBytesRecursive {
		switch strings.ToLower(be.Op) {
		case "read":
			p.BlockRead += int64(be.Value)
		case "write":
			p.BlockWrite += int64(be.Value)
		}
	}

	p.PIDs = int(stats.PidsStats.Current)

	return p, nil
}
