package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads a counter or gauge from the exported registry. Label values are
// matched in declaration order.
func value(name string, labelValues ...string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			labels := m.GetLabel()
			if len(labels) != len(labelValues) {
				continue
			}
			for i, l := range labels {
				if l.GetValue() != labelValues[i] {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the podium namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "podium")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("board"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"instance": "i-1"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "board")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["instance"], ShouldEqual, "i-1")
			})

			Convey("Then metrics should be exported with the custom prefix", func() {
				manager.commands.WithLabelValues("global", "applied").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_board_commands_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "podium")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording command outcomes", func() {
			before := value("podium_engine_commands_total", "metrics-test", "applied")
			RecordCommand("metrics-test", "applied")
			RecordCommand("metrics-test", "applied")
			RecordCommandLatency(0.5)

			Convey("Then the counter should advance", func() {
				after := value("podium_engine_commands_total", "metrics-test", "applied")
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording snapshot activity", func() {
			RecordSnapshotLookup("metrics-test", true)
			RecordSnapshotLookup("metrics-test", false)
			RecordSnapshotRebuild("metrics-test", 1.5, 42)
			RecordSnapshotStaleServe("metrics-test")

			Convey("Then the generation gauge should reflect the last rebuild", func() {
				So(value("podium_engine_snapshot_generation", "metrics-test"), ShouldEqual, 42)
				So(value("podium_engine_snapshot_lookups_total", "metrics-test", "hit"), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateParticipants("metrics-test", 17)
			UpdateQueueSize("events", 3)
			UpdateQueueCapacity("events", 64)
			UpdateRateLimitWindows(5)

			Convey("Then the gauges should hold the last value", func() {
				So(value("podium_engine_participants", "metrics-test"), ShouldEqual, 17)
				So(value("podium_engine_queue_size", "events"), ShouldEqual, 3)
				So(value("podium_engine_queue_capacity", "events"), ShouldEqual, 64)
				So(value("podium_engine_rate_limit_windows"), ShouldEqual, 5)
			})
		})

		Convey("When recording the remaining families", func() {
			So(func() {
				RecordStoreUpdateLatency(0.2)
				RecordStoreQueryLatency(0.1)
				RecordChangeEvaluation("metrics-test", true)
				RecordChangeEvaluation("metrics-test", false)
				RecordEventPublished("metrics-test", 0.3)
				RecordEventDropped("metrics-test", "stale")
				RecordRateLimitRefusal("participant")
				RecordQueueReject("events", "full")
				RecordLedgerAppend()
				RecordLedgerError()
				RecordLedgerReplayed(3)
				RecordHTTPRequest("/commands", "POST", "200")
				RecordHTTPRequestDuration("/commands", "POST", "200", 1.2)
				RecordErrorByComponent("store", "closed")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("When gathering from the exported registry", func() {
			RecordCommand("metrics-test", "rejected_duplicate")
			families, err := GetRegistry().Gather()

			Convey("Then podium metrics should be present", func() {
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "podium_engine_commands_total")
			})
		})
	})
}
