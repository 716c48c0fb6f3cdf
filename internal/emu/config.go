package emu

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes the geometry of an emulated device. The
// conventional area sits at LBA 0 and is carved into zones of
// SequentialZoneBlocks each; the rest of the capacity becomes
// sequential-write-required zones of the same size.
type Profile struct {
	Vendor  string `yaml:"vendor"`
	Product string `yaml:"product"`

	BlockSize             uint32 `yaml:"block_size"`
	CapacityBlocks        uint64 `yaml:"capacity_blocks"`
	ConventionalBlocks    uint64 `yaml:"conventional_blocks"`
	SequentialZoneBlocks  uint64 `yaml:"sequential_zone_blocks"`
	PhysicalBlockExponent uint8  `yaml:"physical_block_exponent"`
}

// DefaultProfile is a small device suitable for tests and tooling
// demos: 64 MiB, one conventional zone, 1 MiB zones.
func DefaultProfile() Profile {
	return Profile{
		BlockSize:            512,
		CapacityBlocks:       128 * 1024,
		ConventionalBlocks:   2048,
		SequentialZoneBlocks: 2048,
	}
}

// LoadProfile reads and validates a YAML zone profile.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the profile describes a partitionable device.
func (p Profile) Validate() error {
	if p.BlockSize == 0 {
		return errors.New("block_size must be positive")
	}
	if p.CapacityBlocks == 0 {
		return errors.New("capacity_blocks must be positive")
	}
	if p.SequentialZoneBlocks == 0 {
		return errors.New("sequential_zone_blocks must be positive")
	}
	if p.ConventionalBlocks%p.SequentialZoneBlocks != 0 {
		return errors.New("conventional_blocks must be a multiple of sequential_zone_blocks")
	}
	if p.ConventionalBlocks >= p.CapacityBlocks {
		return errors.New("conventional_blocks must leave room for sequential zones")
	}
	if p.PhysicalBlockExponent > 4 {
		return errors.New("physical_block_exponent out of range")
	}
	return nil
}
