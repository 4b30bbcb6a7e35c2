package billing

import (
	"fmt"
	"net/http"
)

// Manager routes webhook verification to the registered processor adapters.
type Manager struct {
	gateways map[string]Gateway
}

func NewManager() *Manager {
	return &Manager{gateways: make(map[string]Gateway)}
}

func (m *Manager) RegisterGateway(name string, gateway Gateway) {
	m.gateways[name] = gateway
}

func (m *Manager) VerifyWebhook(name string, r *http.Request, body []byte) (*TopUpEvent, error) {
	gateway, ok := m.gateways[name]
	if !ok {
		return nil, fmt.Errorf("gateway not registered: %s", name)
	}
	return gateway.VerifyWebhook(r, body)
}
