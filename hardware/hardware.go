package hardware

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sardine-ai/go-config-advisor/model"
)

// CgroupMemoryMax is the cgroup v2 memory limit file of the current container.
var CgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// DockerEnvFile exists inside Docker containers.
var DockerEnvFile = "/.dockerenv"

// DefaultProfile is used when neither a profile file nor detection is requested.
func DefaultProfile() model.Profile {
	p := model.Profile{
		Name:        "default",
		Environment: model.EnvProduction,
		CPUs:        4,
		Memory:      8 * model.GiB,
		Instances:   1,
	}
	p.Normalize()
	return p
}

// Detect builds a profile for the host the advisor runs on. The memory
// figure honours a cgroup limit lower than physical memory.
func Detect(ctx context.Context) (model.Profile, error) {
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return model.Profile{}, fmt.Errorf("counting cpus: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.Profile{}, fmt.Errorf("reading memory: %w", err)
	}

	memory := vm.Total
	if limit, ok := cgroupLimit(); ok && limit < memory {
		logrus.WithField("limit", model.ByteSize(limit).String()).Debug("using cgroup memory limit")
		memory = limit
	}

	p := model.Profile{
		Name:          hostname(),
		Environment:   model.EnvProduction,
		CPUs:          cpus,
		Memory:        model.ByteSize(memory),
		Instances:     1,
		Containerized: containerized(),
	}
	p.Normalize()
	return p, nil
}

func cgroupLimit() (uint64, bool) {
	data, err := os.ReadFile(CgroupMemoryMax)
	if err != nil {
		return 0, false
	}
	value := strings.TrimSpace(string(data))
	if value == "max" {
		return 0, false
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func containerized() bool {
	if _, err := os.Stat(DockerEnvFile); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "detected"
	}
	return name
}

// ParseProfile decodes a YAML profile and applies defaults.
func ParseProfile(data []byte) (model.Profile, error) {
	var p model.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return model.Profile{}, fmt.Errorf("%w: %v", model.ErrInvalidProfile, err)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (model.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Profile{}, fmt.Errorf("reading profile %s: %w", path, err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Overrides are command line values applied on top of a loaded or
// detected profile. Zero values leave the profile untouched.
type Overrides struct {
	Environment   string
	CPUs          int
	Memory        string
	Instances     int
	Containerized *bool
	DBCPUs        int
	DBMemory      string
	DBStorage     string
}

// Apply mutates p with the non-zero overrides and re-validates it.
func (o Overrides) Apply(p *model.Profile) error {
	inheritCPUs := p.Database.CPUs == p.CPUs
	inheritMemory := p.Database.Memory == p.Memory

	if o.Environment != "" {
		p.Environment = o.Environment
	}
	if o.CPUs != 0 {
		p.CPUs = o.CPUs
	}
	if o.Memory != "" {
		size, err := model.ParseByteSize(o.Memory)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrInvalidProfile, err)
		}
		p.Memory = size
	}
	if o.Instances != 0 {
		p.Instances = o.Instances
	}
	if o.Containerized != nil {
		p.Containerized = *o.Containerized
	}
	if o.DBCPUs != 0 {
		p.Database.CPUs = o.DBCPUs
	} else if inheritCPUs {
		p.Database.CPUs = p.CPUs
	}
	if o.DBMemory != "" {
		size, err := model.ParseByteSize(o.DBMemory)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrInvalidProfile, err)
		}
		p.Database.Memory = size
	} else if inheritMemory {
		p.Database.Memory = p.Memory
	}
	if o.DBStorage != "" {
		p.Database.Storage = o.DBStorage
	}
	p.Normalize()
	return p.Validate()
}
