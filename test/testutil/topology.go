package testutil

import (
	"github.com/arloliu/meridian/topology"
	"github.com/arloliu/meridian/types"
)

// Canonical test regions shared by routing tests.
var (
	EastUS = types.Region{
		Name:     "East US",
		Endpoint: "https://account-eastus.example.com:443/",
	}
	WestUS = types.Region{
		Name:     "West US",
		Endpoint: "https://account-westus.example.com:443/",
	}
	NorthEurope = types.Region{
		Name:              "North Europe",
		Endpoint:          "https://account-northeurope.example.com:443/",
		AlternateEndpoint: "https://account-northeurope-alt.example.com:443/",
	}
)

// DefaultEndpoint is the account global endpoint used by routing tests.
const DefaultEndpoint = "https://account.example.com:443/"

// ThreeRegionSnapshot builds a topology with one writable region (East US)
// and three readable regions, multi-write disabled.
//
// Returns:
//   - topology.Snapshot: The snapshot
func ThreeRegionSnapshot() topology.Snapshot {
	return topology.Snapshot{
		WritableRegions: []types.Region{EastUS},
		ReadableRegions: []types.Region{EastUS, WestUS, NorthEurope},
	}
}

// MultiWriteSnapshot builds a topology where every region is writable and
// the account reports multi-write capability.
//
// Returns:
//   - topology.Snapshot: The snapshot
func MultiWriteSnapshot() topology.Snapshot {
	return topology.Snapshot{
		WritableRegions:   []types.Region{EastUS, WestUS, NorthEurope},
		ReadableRegions:   []types.Region{EastUS, WestUS, NorthEurope},
		MultiWriteEnabled: true,
	}
}
