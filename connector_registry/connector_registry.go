// Package connector_registry resolves side-effecting connectors by name and
// owns the shared idempotency-key cache that makes their external effects
// execute at most once per key.
package connector_registry

import (
    "context"
    "log/slog"
    "sync"

    "github.com/amsaid/docpilot/agent_type"
)

// Connector is the uniform contract over external side-effecting tools.
type Connector interface {
    Name() string
    Execute(ctx context.Context, req agent_type.ConnectorRequest) agent_type.ConnectorResult
}

type ConnectorRegistry struct {
    mu         sync.RWMutex
    connectors map[string]Connector
    keys       KeyStore
    logger     *slog.Logger
}

func NewConnectorRegistry(keys KeyStore, logger *slog.Logger) *ConnectorRegistry {
    return &ConnectorRegistry{
        connectors: make(map[string]Connector),
        keys:       keys,
        logger:     logger,
    }
}

// RegisterConnector wraps the connector with idempotency-key enforcement
// and makes it resolvable by name.
func (r *ConnectorRegistry) RegisterConnector(c Connector) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.connectors[c.Name()] = &idempotentConnector{inner: c, keys: r.keys, logger: r.logger}
}

// GetConnector returns a connector by name.
func (r *ConnectorRegistry) GetConnector(name string) (Connector, bool) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    c, ok := r.connectors[name]
    return c, ok
}

// ConnectorNames lists the registered connector names.
func (r *ConnectorRegistry) ConnectorNames() []string {
    r.mu.RLock()
    defer r.mu.RUnlock()
    names := make([]string, 0, len(r.connectors))
    for name := range r.connectors {
        names = append(names, name)
    }
    return names
}
