package loadbalancer

import "sync"

// LeastConnections routes to the target with the fewest in-flight proxied
// requests. The proxy reports start and end of each request.
type LeastConnections struct {
	mu          sync.RWMutex
	connections map[string]int
}

func NewLeastConnections() *LeastConnections {
	return &LeastConnections{
		connections: make(map[string]int),
	}
}

// Ties go to the earliest target in the list.
func (l *LeastConnections) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	selected := targets[0]
	minConn := l.connections[selected]
	for _, target := range targets[1:] {
		if conn := l.connections[target]; conn < minConn {
			minConn = conn
			selected = target
		}
	}

	return selected
}

func (l *LeastConnections) Increment(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections[target]++
}

func (l *LeastConnections) Decrement(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[target] > 0 {
		l.connections[target]--
	}
}

// InFlight returns the current in-flight count for target.
func (l *LeastConnections) InFlight(target string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connections[target]
}

func (l *LeastConnections) Name() string {
	return LeastConnectionsName
}
