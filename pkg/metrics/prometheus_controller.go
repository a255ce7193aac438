package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iota-uz/org-hierarchy/pkg/application"
)

const DefaultPath = "/debug/prometheus"

type PrometheusController struct {
	path     string
	gatherer prometheus.Gatherer
}

// NewPrometheusController exposes the default registry, where every promauto
// metric of the org module ends up.
func NewPrometheusController(path string) application.Controller {
	return NewPrometheusControllerFor(path, prometheus.DefaultGatherer)
}

func NewPrometheusControllerFor(path string, gatherer prometheus.Gatherer) application.Controller {
	if path == "" {
		path = DefaultPath
	}
	return &PrometheusController{path: path, gatherer: gatherer}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	h := promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
	r.Handle(c.path, h).Methods(http.MethodGet)
}
