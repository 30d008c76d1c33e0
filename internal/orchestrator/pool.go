package orchestrator

import (
	"net/http"
	"sync"
	"time"
)

// ClientPool hands out one ReplicaClient per replica URL, reusing the
// underlying *http.Client (and its connection-keepalive pool) across
// quorum operations instead of dialing fresh per request. Adapted from the
// teacher's connection pool: a mutex-guarded map keyed by address, minus
// the idle-connection reaper, since replica health here is refreshed
// synchronously before every fan-out rather than evicted in the
// background.
type ClientPool struct {
	mu      sync.Mutex
	clients map[string]*ReplicaClient
	timeout time.Duration
}

// NewClientPool builds a pool that applies timeout to every request issued
// through a client it hands out.
func NewClientPool(timeout time.Duration) *ClientPool {
	return &ClientPool{
		clients: make(map[string]*ReplicaClient),
		timeout: timeout,
	}
}

// Get returns the ReplicaClient for baseURL, creating one on first use.
func (p *ClientPool) Get(baseURL string) *ReplicaClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[baseURL]; ok {
		return c
	}
	httpClient := &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	c := newReplicaClient(baseURL, httpClient)
	p.clients[baseURL] = c
	return c
}

// Close releases every pooled client's idle connections.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.http.CloseIdleConnections()
	}
}
