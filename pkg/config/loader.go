package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// InitState is one starting gain triple for seeding an optimizer
type InitState [3]float64

// LoadInitStates reads the init-state presets file. The file is a JSON
// object keyed by the preset index ("0", "1", ...), each value a
// [Kp, Ki, Kd] triple. States are returned in index order.
func LoadInitStates(path string) ([]InitState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read init states file %s: %w", path, err)
	}

	var raw map[string][3]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse init states file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("init states file %s is empty", path)
	}

	keys := make([]int, 0, len(raw))
	for k := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("init states file %s: key %q is not an index", path, k)
		}
		keys = append(keys, idx)
	}
	sort.Ints(keys)

	states := make([]InitState, 0, len(raw))
	for _, k := range keys {
		states = append(states, raw[strconv.Itoa(k)])
	}
	return states, nil
}

// SelectInitState returns the configured preset from the loaded list
func SelectInitState(states []InitState, index int) (InitState, error) {
	if index < 0 || index >= len(states) {
		return InitState{}, fmt.Errorf("init_state %d out of range (have %d presets)", index, len(states))
	}
	return states[index], nil
}
