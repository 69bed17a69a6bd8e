package loadbalancer

import "sync/atomic"

// RoundRobin cycles over whatever targets are healthy at call time, so the
// rotation shifts when a target drops out.
type RoundRobin struct {
	current atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}

	n := r.current.Add(1) - 1
	return targets[n%uint64(len(targets))]
}

func (r *RoundRobin) Name() string {
	return RoundRobinName
}
