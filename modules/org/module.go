package org

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/org-hierarchy/modules/org/handlers"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/relay"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/controllers"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/application"
)

type ModuleOptions struct {
	Repository      services.HierarchyRepository
	Cache           services.Cache
	MaxBatchSize    int
	DefaultTenantID uuid.UUID
	// Relay, when set, forwards committed batches to other instances.
	Relay *relay.Relay
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.options.Repository == nil {
		return fmt.Errorf("org module: repository is required")
	}

	app.RegisterServices(
		services.NewHierarchyService(m.options.Repository, services.HierarchyServiceOptions{
			Cache:           m.options.Cache,
			EventBus:        app.EventPublisher(),
			MaxBatchSize:    m.options.MaxBatchSize,
			DefaultTenantID: m.options.DefaultTenantID,
		}),
	)

	app.RegisterControllers(
		controllers.NewHierarchyAPIController(app),
	)

	handlers.RegisterHierarchyEventHandlers(app)
	if m.options.Relay != nil {
		app.EventPublisher().Subscribe(m.options.Relay.Forward)
	}
	return nil
}

func (m *Module) Name() string {
	return "org"
}
