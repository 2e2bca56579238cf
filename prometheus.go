package remapd

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
)

var promOnce sync.Once

func initPrometheus(appVersion string) {
	promOnce.Do(func() {
		if appVersion != "" {
			version.Version = appVersion
		}
		prometheus.MustRegister(versioncollector.NewCollector("remapd"))
	})
}
