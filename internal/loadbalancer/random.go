package loadbalancer

import "math/rand"

// Random picks uniformly among the healthy targets.
type Random struct{}

func NewRandom() *Random {
	return &Random{}
}

func (r *Random) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}
	return targets[rand.Intn(len(targets))]
}

func (r *Random) Name() string {
	return RandomName
}
