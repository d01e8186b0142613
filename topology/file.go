package topology

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/meridian/types"
)

// fileDocument is the YAML structure of a topology bootstrap file.
//
// Example:
//
//	multiWriteEnabled: true
//	writableRegions:
//	  - name: East US
//	    endpoint: https://account-eastus.example.com:443/
//	  - name: West Europe
//	    endpoint: https://account-westeurope.example.com:443/
//	readableRegions:
//	  - name: East US
//	    endpoint: https://account-eastus.example.com:443/
//	  - name: West Europe
//	    endpoint: https://account-westeurope.example.com:443/
type fileDocument struct {
	MultiWriteEnabled bool           `yaml:"multiWriteEnabled"`
	WritableRegions   []types.Region `yaml:"writableRegions"`
	ReadableRegions   []types.Region `yaml:"readableRegions"`
}

// LoadFile reads a topology bootstrap file.
//
// Bootstrap files let an application seed the region directory before the
// first account read completes, so resolution degrades to the static
// topology instead of the bare default endpoint during startup.
//
// Parameters:
//   - path: Path to the YAML topology file
//
// Returns:
//   - Snapshot: The parsed topology
//   - error: Error if the file cannot be read or is invalid
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("meridian/topology: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a YAML topology document.
//
// Parameters:
//   - data: The YAML document bytes
//
// Returns:
//   - Snapshot: The parsed topology
//   - error: Error if the document is malformed or a region is invalid
func Parse(data []byte) (Snapshot, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("meridian/topology: parse topology: %w", err)
	}

	for _, region := range doc.WritableRegions {
		if err := validateRegion(region); err != nil {
			return Snapshot{}, err
		}
	}
	for _, region := range doc.ReadableRegions {
		if err := validateRegion(region); err != nil {
			return Snapshot{}, err
		}
	}

	return Snapshot{
		WritableRegions:   doc.WritableRegions,
		ReadableRegions:   doc.ReadableRegions,
		MultiWriteEnabled: doc.MultiWriteEnabled,
	}, nil
}

// validateRegion checks that a region has a name and a well-formed endpoint.
func validateRegion(region types.Region) error {
	if region.Name == "" {
		return errors.New("meridian/topology: region name cannot be empty")
	}
	if err := validateEndpoint(region.Endpoint); err != nil {
		return fmt.Errorf("meridian/topology: region %s: %w", region.Name, err)
	}
	if region.AlternateEndpoint != "" {
		if err := validateEndpoint(region.AlternateEndpoint); err != nil {
			return fmt.Errorf("meridian/topology: region %s alternate: %w", region.Name, err)
		}
	}

	return nil
}

// validateEndpoint checks that an endpoint is an absolute URL with a host.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q must be an absolute URL", endpoint)
	}

	return nil
}
