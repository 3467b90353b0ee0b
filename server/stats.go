package server

import (
	"expvar"
	"sync"
	"time"

	"github.com/facebookgo/stats"
)

// expvarStats publishes the counters httpdown keeps in an expvar map, so
// they are visible at /debug/vars. Averages and histograms are kept as a
// running sum and count.
type expvarStats struct {
	m *expvar.Map
}

var _ stats.Client = &expvarStats{}

// expvar names may only be published once per process
var (
	statsMu   sync.Mutex
	statsMaps = make(map[string]*expvar.Map)
)

func newExpvarStats(name string) *expvarStats {
	statsMu.Lock()
	defer statsMu.Unlock()
	m, ok := statsMaps[name]
	if !ok {
		m = expvar.NewMap(name)
		statsMaps[name] = m
	}
	return &expvarStats{m: m}
}

func (e *expvarStats) BumpAvg(key string, val float64) {
	e.m.AddFloat(key+".sum", val)
	e.m.Add(key+".count", 1)
}

func (e *expvarStats) BumpSum(key string, val float64) {
	e.m.AddFloat(key, val)
}

func (e *expvarStats) BumpHistogram(key string, val float64) {
	e.BumpAvg(key, val)
}

func (e *expvarStats) BumpTime(key string) interface {
	End()
} {
	return &timer{e: e, key: key, start: time.Now()}
}

type timer struct {
	e     *expvarStats
	key   string
	start time.Time
}

// End records the time since the timer was started, in seconds.
func (t *timer) End() {
	t.e.BumpAvg(t.key, time.Since(t.start).Seconds())
}
