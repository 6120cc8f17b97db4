package task

// ServiceRegistry maps a service name to its immutable ServiceConfig.
type ServiceRegistry struct {
	services map[string]*ServiceConfig
}

// NewServiceRegistry builds an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]*ServiceConfig)}
}

// Register adds cfg under cfg.Name, overwriting any prior registration under
// the same name.
func (r *ServiceRegistry) Register(cfg *ServiceConfig) {
	r.services[cfg.Name] = cfg
}

// Get resolves name, returning ServiceNotFoundError for unknowns.
func (r *ServiceRegistry) Get(name string) (*ServiceConfig, error) {
	cfg, ok := r.services[name]
	if !ok {
		return nil, NewServiceNotFoundError(name)
	}
	return cfg, nil
}

// Names returns every registered service name, in no particular order.
func (r *ServiceRegistry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry builds the registry shipped with subterminator: the
// Netflix reference policy plus a generic account-settings fallback for
// services that expose a standard account/subscription settings page but
// have no bespoke policy written yet.
func DefaultRegistry() *ServiceRegistry {
	r := NewServiceRegistry()
	r.Register(NetflixServiceConfig())
	r.Register(AccountSettingsServiceConfig())
	return r
}
