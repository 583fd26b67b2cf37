// Package application contains use-case orchestration services.
package application

import (
	"fmt"
	"sort"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Registry binds each platform of the closed enum to its adapter
// implementation. It is assembled once at wiring time; lookups never
// dispatch on runtime type inspection or string tags.
type Registry struct {
	clients map[model.Platform]driven.PlatformClient
}

// NewRegistry builds a registry from concrete clients. Registering two
// clients for the same platform is a wiring bug and fails construction.
func NewRegistry(clients ...driven.PlatformClient) (*Registry, error) {
	reg := &Registry{clients: make(map[model.Platform]driven.PlatformClient, len(clients))}
	for _, client := range clients {
		platform := client.Platform()
		if _, dup := reg.clients[platform]; dup {
			return nil, fmt.Errorf("duplicate adapter registered for platform %q", platform)
		}
		reg.clients[platform] = client
	}
	return reg, nil
}

// Get returns the adapter for a platform.
func (r *Registry) Get(platform model.Platform) (driven.PlatformClient, error) {
	client, ok := r.clients[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPlatform, platform)
	}
	return client, nil
}

// Platforms returns the registered platforms in sorted order, keeping
// RunAll deterministic.
func (r *Registry) Platforms() []model.Platform {
	platforms := make([]model.Platform, 0, len(r.clients))
	for p := range r.clients {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}
