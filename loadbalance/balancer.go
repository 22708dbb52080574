// Package loadbalance selects one server instance from the set a registry
// discovery returned.
//
// Two strategies are implemented:
//   - RoundRobin:     equal-capacity instances
//   - WeightedRandom: heterogeneous instances (different CPU/memory)
package loadbalance

import "mini-mcp/registry"

// Balancer picks a target instance before each connection is dialed.
// Implementations must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name, for logging.
	Name() string
}
