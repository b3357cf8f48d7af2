package maintenance

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tasks.yaml
var catalogRawData []byte

// Canonical task names. Checklist keys must match these exactly.
const (
	TaskPhysicalInspection = "Physical damage inspection"
	TaskDustCleaning       = "Dust and vent cleaning"
	TaskCableCheck         = "Cable connection check"
	TaskOSUpdate           = "OS update"
	TaskAntivirusScan      = "Antivirus scan"
	TaskDiskCleanup        = "Disk space cleanup"
	TaskBatteryHealth      = "Battery health check"
	TaskKeyboardTrackpad   = "Keyboard and trackpad test"
	TaskHingeCheck         = "Hinge operation check"
	TaskPowerSupply        = "Power supply connection check"
	TaskTemperature        = "CPU/GPU temperature monitoring"
	TaskPortTest           = "USB and port test"
	TaskHDDHealth          = "HDD health check"
	TaskSSDHealth          = "SSD health and wear-level check"
)

// Task is one required maintenance action for a device.
type Task struct {
	Name     string `yaml:"name" json:"name"`
	Critical bool   `yaml:"critical" json:"critical"`
}

type storageRule struct {
	Match string `yaml:"match"`
	Tasks []Task `yaml:"tasks"`
}

// catalogFile is the top-level structure of the embedded YAML.
type catalogFile struct {
	Base        []Task            `yaml:"base"`
	DeviceTypes map[string][]Task `yaml:"device_types"`
	Storage     []storageRule     `yaml:"storage"`
}

var (
	catalogOnce sync.Once
	catalog     catalogFile
)

// loadCatalog parses the embedded catalog. The file ships with the binary,
// so a parse failure is a build defect and panics.
func loadCatalog() *catalogFile {
	catalogOnce.Do(func() {
		if err := yaml.Unmarshal(catalogRawData, &catalog); err != nil {
			panic(fmt.Sprintf("maintenance: parse task catalog: %v", err))
		}
	})
	return &catalog
}

// ResolveTasks returns the tasks required for a device of the given type
// and storage medium, critical tasks first. Unknown types get the base set.
func ResolveTasks(deviceType, storageMedium string) []Task {
	c := loadCatalog()

	tasks := make([]Task, 0, len(c.Base)+4)
	tasks = append(tasks, c.Base...)
	tasks = append(tasks, c.DeviceTypes[strings.ToLower(strings.TrimSpace(deviceType))]...)

	medium := strings.ToLower(storageMedium)
	for _, rule := range c.Storage {
		if strings.Contains(medium, rule.Match) {
			tasks = append(tasks, rule.Tasks...)
			break
		}
	}

	seen := make(map[string]struct{}, len(tasks))
	out := tasks[:0]
	for _, t := range tasks {
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Critical && !out[j].Critical
	})
	return out
}

// CriticalTasks filters tasks down to the critical ones.
func CriticalTasks(tasks []Task) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Critical {
			out = append(out, t)
		}
	}
	return out
}
