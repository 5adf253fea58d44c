package observability

import (
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ServiceInfo identifies the running kernel instance to telemetry backends.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// newResource builds the resource shared by the tracer and meter providers.
// Only service attributes are set, avoiding schema conflicts with resource.Default().
func newResource(info ServiceInfo) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(info.Name),
		semconv.ServiceVersion(info.Version),
		semconv.ServiceInstanceID(info.InstanceID),
		semconv.DeploymentEnvironment(info.Environment),
	)
}
