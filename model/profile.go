package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"

	StorageSSD = "ssd"
	StorageHDD = "hdd"

	MiB = 1 << 20
	GiB = 1 << 30

	// MinMemory is the smallest host the advisor will produce advice for.
	MinMemory = 512 * MiB
)

var ErrInvalidProfile = errors.New("invalid profile")

// ByteSize is a number of bytes that accepts human readable sizes such as
// "8GiB" or "512 MB" when decoded from YAML or JSON.
type ByteSize uint64

func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n uint64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	parsed, err := ParseByteSize(value.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// DatabaseHost describes the PostgreSQL server the application talks to.
type DatabaseHost struct {
	CPUs    int      `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Memory  ByteSize `yaml:"memory,omitempty" json:"memory,omitempty"`
	Storage string   `yaml:"storage,omitempty" json:"storage,omitempty"`
}

// Profile holds the hardware and deployment facts that advice is computed from.
type Profile struct {
	Name          string       `yaml:"name,omitempty" json:"name,omitempty"`
	Environment   string       `yaml:"environment" json:"environment"`
	CPUs          int          `yaml:"cpus" json:"cpus"`
	Memory        ByteSize     `yaml:"memory" json:"memory"`
	Instances     int          `yaml:"instances" json:"instances"`
	Containerized bool         `yaml:"containerized" json:"containerized"`
	Database      DatabaseHost `yaml:"database,omitempty" json:"database,omitempty"`
}

// Normalize fills unset fields with defaults. A database section without
// values inherits the application host.
func (p *Profile) Normalize() {
	p.Environment = strings.ToLower(strings.TrimSpace(p.Environment))
	if p.Environment == "" {
		p.Environment = EnvProduction
	}
	if p.Instances == 0 {
		p.Instances = 1
	}
	if p.Database.CPUs == 0 {
		p.Database.CPUs = p.CPUs
	}
	if p.Database.Memory == 0 {
		p.Database.Memory = p.Memory
	}
	p.Database.Storage = strings.ToLower(strings.TrimSpace(p.Database.Storage))
	if p.Database.Storage == "" {
		p.Database.Storage = StorageSSD
	}
}

func (p *Profile) Validate() error {
	if p.CPUs < 1 {
		return fmt.Errorf("%w: cpus must be at least 1, got %d", ErrInvalidProfile, p.CPUs)
	}
	if p.Memory < MinMemory {
		return fmt.Errorf("%w: memory must be at least %s, got %s", ErrInvalidProfile, ByteSize(MinMemory), p.Memory)
	}
	if p.Instances < 1 {
		return fmt.Errorf("%w: instances must be at least 1, got %d", ErrInvalidProfile, p.Instances)
	}
	switch p.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("%w: unknown environment %q", ErrInvalidProfile, p.Environment)
	}
	if p.Database.CPUs < 1 {
		return fmt.Errorf("%w: database cpus must be at least 1, got %d", ErrInvalidProfile, p.Database.CPUs)
	}
	if p.Database.Memory < MinMemory {
		return fmt.Errorf("%w: database memory must be at least %s, got %s", ErrInvalidProfile, ByteSize(MinMemory), p.Database.Memory)
	}
	switch p.Database.Storage {
	case StorageSSD, StorageHDD:
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidProfile, p.Database.Storage)
	}
	return nil
}

// IsProduction reports whether production-only rules apply.
func (p *Profile) IsProduction() bool {
	return p.Environment == EnvProduction
}
