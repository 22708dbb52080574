package registry

// DefaultService is the service name mcp servers advertise under when none
// is configured.
const DefaultService = "mcp"

// ServiceInstance is one advertised server endpoint.
type ServiceInstance struct {
	Addr    string
	Weight  int // weight for load balancing
	Version string
}

// Registry lets servers advertise their listen address and clients discover
// live instances. It is optional infrastructure: a nil Registry means static
// addressing.
type Registry interface {
	Register(service string, instance ServiceInstance, ttl int64) error
	Deregister(service string, addr string) error
	Discover(service string) ([]ServiceInstance, error)
	Watch(service string) <-chan []ServiceInstance
}
