// Package metrics samples system state shown on metric buttons. Sampling is
// pull-only: nothing runs until a widget asks.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

// Kind identifies what a sampler measures.
type Kind int

const (
	CPU Kind = iota
	Memory
	Battery
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case Memory:
		return "memory"
	case Battery:
		return "battery"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrNoBattery is returned when no power supply of type Battery exists.
var ErrNoBattery = errors.New("no battery found")

// Battery status values as reported by the kernel.
const (
	StatusCharging    = "Charging"
	StatusDischarging = "Discharging"
	StatusFull        = "Full"
)

// CPUSample holds the share of ticks per state since the previous sample,
// in percent.
type CPUSample struct {
	System, User, Idle, Nice, Iowait uint8
}

// MemorySample holds the share of memory not available to new allocations.
type MemorySample struct {
	Used uint8
}

// BatterySample is the state of the first battery.
type BatterySample struct {
	Name     string
	Capacity int
	Status   string
}

// Charging reports whether the battery is being charged.
func (b BatterySample) Charging() bool {
	return b.Status == StatusCharging
}

// Reading is one sample of any kind.
type Reading struct {
	Kind    Kind
	CPU     CPUSample
	Memory  MemorySample
	Battery BatterySample
}

// String formats the reading the way buttons display it.
func (r Reading) String() string {
	switch r.Kind {
	case CPU:
		return fmt.Sprintf("%d/%d/%d", r.CPU.System, r.CPU.User, r.CPU.Idle)
	case Memory:
		return fmt.Sprintf("%d%%", r.Memory.Used)
	case Battery:
		return fmt.Sprintf("%d%%", r.Battery.Capacity)
	}
	return ""
}

// Sampler produces readings on demand.
type Sampler interface {
	Kind() Kind
	Sample() (Reading, error)
}

// CPUSampler reports CPU usage between consecutive calls.
type CPUSampler struct {
	fs   procfs.FS
	last *procfs.CPUStat
}

// NewCPUSampler reads an initial snapshot from procRoot (normally /proc) so
// the first Sample already covers a real interval.
func NewCPUSampler(procRoot string) (*CPUSampler, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, err
	}
	s := &CPUSampler{fs: fs}
	if stat, err := fs.Stat(); err == nil {
		s.last = &stat.CPUTotal
	}
	return s, nil
}

func (s *CPUSampler) Kind() Kind { return CPU }

func (s *CPUSampler) Sample() (Reading, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return Reading{Kind: CPU}, fmt.Errorf("read cpu stats: %w", err)
	}
	cur := stat.CPUTotal
	prev := s.last
	s.last = &cur
	if prev == nil {
		return Reading{Kind: CPU}, nil
	}
	return Reading{Kind: CPU, CPU: cpuDelta(*prev, cur)}, nil
}

func cpuTotal(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal + c.Guest + c.GuestNice
}

func cpuDelta(prev, cur procfs.CPUStat) CPUSample {
	total := cpuTotal(cur) - cpuTotal(prev)
	if total <= 0 {
		return CPUSample{}
	}
	pct := func(a, b float64) uint8 {
		d := b - a
		if d <= 0 {
			return 0
		}
		return uint8(math.Round(d * 100 / total))
	}
	return CPUSample{
		System: pct(prev.System, cur.System),
		User:   pct(prev.User, cur.User),
		Idle:   pct(prev.Idle, cur.Idle),
		Nice:   pct(prev.Nice, cur.Nice),
		Iowait: pct(prev.Iowait, cur.Iowait),
	}
}

// MemorySampler reports used memory from /proc/meminfo.
type MemorySampler struct {
	fs procfs.FS
}

// NewMemorySampler reads meminfo below procRoot.
func NewMemorySampler(procRoot string) (*MemorySampler, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, err
	}
	return &MemorySampler{fs: fs}, nil
}

func (s *MemorySampler) Kind() Kind { return Memory }

func (s *MemorySampler) Sample() (Reading, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return Reading{Kind: Memory}, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotal == nil || *mi.MemTotal == 0 {
		return Reading{Kind: Memory}, errors.New("meminfo lacks MemTotal")
	}
	var avail uint64
	if mi.MemAvailable != nil {
		avail = *mi.MemAvailable
	}
	avail = min(avail, *mi.MemTotal)
	used := 100 - avail*100 / *mi.MemTotal
	return Reading{Kind: Memory, Memory: MemorySample{Used: uint8(used)}}, nil
}

// BatterySampler reports the first battery in /sys/class/power_supply.
type BatterySampler struct {
	fs sysfs.FS
}

// NewBatterySampler reads power supplies below sysRoot (normally /sys).
func NewBatterySampler(sysRoot string) (*BatterySampler, error) {
	fs, err := sysfs.NewFS(sysRoot)
	if err != nil {
		return nil, err
	}
	return &BatterySampler{fs: fs}, nil
}

func (s *BatterySampler) Kind() Kind { return Battery }

func (s *BatterySampler) Sample() (Reading, error) {
	class, err := s.fs.PowerSupplyClass()
	if err != nil {
		return Reading{Kind: Battery}, fmt.Errorf("read power supplies: %w", err)
	}

	names := make([]string, 0, len(class))
	for name := range class {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ps := class[name]
		if ps.Type != "Battery" || ps.Capacity == nil {
			continue
		}
		return Reading{Kind: Battery, Battery: BatterySample{
			Name:     name,
			Capacity: int(*ps.Capacity),
			Status:   ps.Status,
		}}, nil
	}
	return Reading{Kind: Battery}, ErrNoBattery
}

// New creates the sampler for kind using the standard mount points.
func New(kind Kind) (Sampler, error) {
	switch kind {
	case CPU:
		return NewCPUSampler(procfs.DefaultMountPoint)
	case Memory:
		return NewMemorySampler(procfs.DefaultMountPoint)
	case Battery:
		return NewBatterySampler(sysfs.DefaultMountPoint)
	}
	return nil, fmt.Errorf("unknown metric kind %v", kind)
}
