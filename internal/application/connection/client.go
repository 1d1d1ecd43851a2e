package connection

import (
	"context"

	"github.com/google/uuid"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
)

// BackendClient sends one dispatch document to the connector backend. A
// failure is always reported as an *integration.ConnectError.
type BackendClient interface {
	Call(ctx context.Context, req connector.WireRequest) (*connector.Result, error)
}

// LocalClient calls a connector backend in the same process on behalf of one tenant
type LocalClient struct {
	backend   connector.Backend
	providers integration.ProviderRegistry
	tenantID  uuid.UUID
}

// NewLocalClient creates an in-process backend client
func NewLocalClient(backend connector.Backend, providers integration.ProviderRegistry, tenantID uuid.UUID) *LocalClient {
	return &LocalClient{backend: backend, providers: providers, tenantID: tenantID}
}

var _ BackendClient = (*LocalClient)(nil)

// Call decodes the document exactly as the HTTP handler does and dispatches it
func (c *LocalClient) Call(ctx context.Context, wire connector.WireRequest) (*connector.Result, error) {
	req, err := connector.DecodeRequest(wire, c.providers)
	if err != nil {
		return nil, err
	}
	return c.backend.Dispatch(ctx, c.tenantID, req)
}
