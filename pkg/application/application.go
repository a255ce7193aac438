package application

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-hierarchy/pkg/eventbus"
)

// Controller mounts a group of routes. Key must be unique per application.
type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Name() string
	Register(app Application) error
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
}

type ApplicationOptions struct {
	// Pool is nil when the hierarchy lives in SQLite.
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(logger)
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		logger:         logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

// Controllers are returned ordered by key so routes register the same way on
// every start.
func (app *application) Controllers() []Controller {
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	controllers := make([]Controller, 0, len(keys))
	for _, k := range keys {
		controllers = append(controllers, app.controllers[k])
	}
	return controllers
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}

// LoadModules registers modules in order and stops at the first failure.
func LoadModules(app Application, modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
	}
	return nil
}
