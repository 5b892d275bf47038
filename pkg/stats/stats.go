package stats

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// RefreshInterval is how often the cached snapshot is recomputed.
const RefreshInterval = 30 * time.Second

// CPUSampleInterval is the window cpu usage is measured over. A zero window
// compares against the previous call and is meaningless on the first one.
const CPUSampleInterval = 500 * time.Millisecond

var cpuPercent = cpu.Percent

// Snapshot is one host resource reading.
type Snapshot struct {
	CPUPercent      float64   `json:"cpuPercent"`
	MemoryPercent   float64   `json:"memoryPercent"`
	DiskPath        string    `json:"diskPath"`
	DiskTotal       string    `json:"diskTotal"`
	DiskUsed        string    `json:"diskUsed"`
	DiskUsedPercent float64   `json:"diskUsedPercent"`
	CollectedAt     time.Time `json:"collectedAt"`
}

// Collect reads cpu, memory and disk usage for the volume holding diskPath.
// Readings that fail are logged and left at zero.
func Collect(diskPath string) Snapshot {
	s := Snapshot{DiskPath: diskPath, DiskTotal: "N/A", DiskUsed: "N/A", CollectedAt: time.Now().UTC()}

	if pct, err := cpuPercent(CPUSampleInterval, false); err != nil {
		log.Printf("Error reading CPU usage: %v", err)
	} else if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Printf("Error reading memory usage: %v", err)
	} else {
		s.MemoryPercent = vm.UsedPercent
	}

	if du, err := disk.Usage(diskPath); err != nil {
		log.Printf("Error reading disk usage for %s: %v", diskPath, err)
	} else {
		s.DiskTotal = FormatBytes(du.Total)
		s.DiskUsed = FormatBytes(du.Used)
		s.DiskUsedPercent = du.UsedPercent
	}
	return s
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d Bytes", n)
	}
}

// Cache holds the latest snapshot so requests never wait on a reading.
type Cache struct {
	sync.RWMutex
	diskPath string
	collect  func(string) Snapshot
	data     Snapshot
}

// NewCache returns a cache reporting on the volume holding diskPath.
func NewCache(diskPath string) *Cache {
	return &Cache{diskPath: diskPath, collect: Collect}
}

// RunUpdater refreshes the cache now and then every RefreshInterval.
func (c *Cache) RunUpdater() {
	ticker := time.NewTicker(RefreshInterval)
	go func() {
		for {
			c.Update()
			<-ticker.C
		}
	}()
}

func (c *Cache) Update() {
	s := c.collect(c.diskPath)
	c.Lock()
	defer c.Unlock()
	c.data = s
}

// GetData returns the cached snapshot as a JSON object.
func (c *Cache) GetData() gin.H {
	c.RLock()
	defer c.RUnlock()
	if c.data.CollectedAt.IsZero() {
		return gin.H{}
	}
	return gin.H{
		"cpuPercent":      c.data.CPUPercent,
		"memoryPercent":   c.data.MemoryPercent,
		"diskPath":        c.data.DiskPath,
		"diskTotal":       c.data.DiskTotal,
		"diskUsed":        c.data.DiskUsed,
		"diskUsedPercent": c.data.DiskUsedPercent,
		"collectedAt":     c.data.CollectedAt,
	}
}
