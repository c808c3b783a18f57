package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "searchgate_build_info",
			Help: "Build of the running searchgate component. Always 1.",
		},
		[]string{"version", "commit", "component", "go_version"},
	)
)

// InitBuildInfo sets searchgate_build_info for component. A "dev" or empty commit is
// replaced by the VCS revision stamped into the binary, when there is one.
func InitBuildInfo(version, commit, component string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if commit == "" || commit == "dev" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	buildInfo.WithLabelValues(version, commit, component, runtime.Version()).Set(1)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
