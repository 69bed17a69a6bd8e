// Package loadbalancer picks which adapter instance serves a metered request.
package loadbalancer

import (
	"fmt"
	"strings"
)

const (
	RoundRobinName       = "round_robin"
	RandomName           = "random"
	LeastConnectionsName = "least_connections"
)

// Strategy chooses one of the currently healthy targets.
type Strategy interface {
	Next(targets []string) string
	Name() string
}

// ConnectionTracker is implemented by strategies that need to know how many
// requests each target is serving.
type ConnectionTracker interface {
	Increment(target string)
	Decrement(target string)
}

// NewStrategy accepts the names with either dashes or underscores. An empty
// name selects round robin.
func NewStrategy(name string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_") {
	case RoundRobinName, "":
		return NewRoundRobin(), nil
	case RandomName:
		return NewRandom(), nil
	case LeastConnectionsName:
		return NewLeastConnections(), nil
	default:
		return nil, fmt.Errorf("unknown load balancing strategy %q (want %s, %s or %s)",
			name, RoundRobinName, RandomName, LeastConnectionsName)
	}
}
