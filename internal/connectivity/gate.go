// Package connectivity provides the point-in-time online check consulted
// before every remote attempt. It is a snapshot, not a subscription:
// flapping connectivity can flip consecutive calls milliseconds apart.
package connectivity

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardian-service/internal/util"
)

type Gate interface {
	IsOnline() bool
}

// HTTPProbe reports online when the API health endpoint answers within
// the timeout. Any response counts; only transport failure means offline.
type HTTPProbe struct {
	url    string
	client *http.Client
}

func NewHTTPProbe(baseURL string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:    baseURL + "/health",
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProbe) IsOnline() bool {
	resp, err := p.client.Get(p.url)
	if err != nil {
		util.Debug("Connectivity probe failed", zap.Error(err))
		return false
	}
	resp.Body.Close()
	return true
}

// StaticGate is a settable gate for tests and for the cache-only mode the
// agent enters when no remote is configured.
type StaticGate struct {
	mu     sync.RWMutex
	online bool
}

func NewStaticGate(online bool) *StaticGate {
	return &StaticGate{online: online}
}

func (g *StaticGate) IsOnline() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.online
}

func (g *StaticGate) SetOnline(online bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.online = online
}
