package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// LoadProfile reads one mapping profile from a YAML file. A profile with no
// name takes the file's base name.
func LoadProfile(path string) (*core.MappingProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile %s: %w", path, err)
	}
	defer f.Close()

	var profile core.MappingProfile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&profile); err != nil {
		return nil, &core.ConfigurationError{
			ConfigID: filepath.Base(path),
			Reason:   fmt.Sprintf("invalid profile yaml: %v", err),
		}
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &profile, nil
}

// LoadProfiles reads every YAML file in dir and returns the profiles keyed
// by name. A missing directory yields an empty map; a malformed profile is
// returned as a rejection error without stopping the others.
func LoadProfiles(dir string) (map[string]*core.MappingProfile, []error, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]*core.MappingProfile{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read profiles directory %s: %w", dir, err)
	}

	profiles := make(map[string]*core.MappingProfile)
	var rejected []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		profile, err := LoadProfile(filepath.Join(dir, entry.Name()))
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		if _, dup := profiles[profile.Name]; dup {
			rejected = append(rejected, &core.ConfigurationError{
				ConfigID: entry.Name(),
				Reason:   fmt.Sprintf("duplicate profile name %q", profile.Name),
			})
			continue
		}
		profiles[profile.Name] = profile
	}
	return profiles, rejected, nil
}

// ExportProfile writes a profile as YAML.
func ExportProfile(w io.Writer, profile *core.MappingProfile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(profile); err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", profile.Name, err)
	}
	return enc.Close()
}
