package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/podium/internal/adapters/bus"
	"github.com/okian/podium/internal/adapters/http/api"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/model"
)

func postCommand(url, participant string, delta int64, seq uint64) (*http.Response, error) {
	body := fmt.Sprintf(`{"participant_id":%q,"delta":%d,"command_id":%d}`, participant, delta, seq)
	return http.Post(url+"/commands", "application/json", strings.NewReader(body))
}

func waitForGeneration(ch <-chan model.ChangeEvent, gen uint64) (model.ChangeEvent, bool) {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return model.ChangeEvent{}, false
			}
			if ev.Generation >= gen {
				return ev, true
			}
		case <-deadline:
			return model.ChangeEvent{}, false
		}
	}
}

func TestServiceIntegration_HTTP(t *testing.T) {
	Convey("Given a running service behind the HTTP API", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.TopK = 2
		mb := bus.NewMemoryBus()
		defer func() { _ = mb.Close() }()

		svc := service.New(service.WithConfig(cfg), service.WithPublisher(mb))
		So(svc.Start(ctx), ShouldBeNil)
		defer stop(svc)

		events, unsubscribe := mb.Subscribe("global", 64)
		defer unsubscribe()

		mux := http.NewServeMux()
		api.NewServer(svc, svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)
		ts := httptest.NewServer(mux)
		defer ts.Close()

		for _, c := range []struct {
			id    string
			delta int64
		}{{"A", 100}, {"B", 90}, {"C", 80}} {
			resp, err := postCommand(ts.URL, c.id, c.delta, 1)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			_ = resp.Body.Close()
		}

		Convey("When C overtakes B", func() {
			resp, err := postCommand(ts.URL, "C", 15, 2)
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the command reports the new score and rank", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body["new_score"], ShouldEqual, float64(95))
				So(body["new_rank"], ShouldEqual, float64(2))
			})

			Convey("Then observers receive the new top two", func() {
				ev, ok := waitForGeneration(events, 4)
				So(ok, ShouldBeTrue)
				So(ev.Affected, ShouldResemble, []string{"C", "B"})
				So(ev.TopK[1].ParticipantID, ShouldEqual, "C")
			})

			Convey("Then the leaderboard is served with a reusable entity tag", func() {
				lb, err := http.Get(ts.URL + "/leaderboard?limit=2")
				So(err, ShouldBeNil)
				defer func() { _ = lb.Body.Close() }()
				So(lb.StatusCode, ShouldEqual, http.StatusOK)
				So(lb.Header.Get(api.HeaderSnapshotGeneration), ShouldEqual, "4")

				var entries []model.RankedEntry
				So(json.NewDecoder(lb.Body).Decode(&entries), ShouldBeNil)
				So(entries, ShouldResemble, []model.RankedEntry{
					{Rank: 1, ParticipantID: "A", Score: 100},
					{Rank: 2, ParticipantID: "C", Score: 95},
				})

				req, err := http.NewRequest(http.MethodGet, ts.URL+"/leaderboard?limit=2", nil)
				So(err, ShouldBeNil)
				req.Header.Set("If-None-Match", lb.Header.Get("ETag"))
				again, err := http.DefaultClient.Do(req)
				So(err, ShouldBeNil)
				_ = again.Body.Close()
				So(again.StatusCode, ShouldEqual, http.StatusNotModified)
			})

			Convey("Then B's rank is third and replaying the command is a conflict", func() {
				rank, err := http.Get(ts.URL + "/rank/B")
				So(err, ShouldBeNil)
				var entry model.RankedEntry
				So(json.NewDecoder(rank.Body).Decode(&entry), ShouldBeNil)
				_ = rank.Body.Close()
				So(entry.Rank, ShouldEqual, 3)

				dup, err := postCommand(ts.URL, "C", 15, 2)
				So(err, ShouldBeNil)
				_ = dup.Body.Close()
				So(dup.StatusCode, ShouldEqual, http.StatusConflict)
			})
		})
	})
}

func TestServiceIntegration_LedgerRestart(t *testing.T) {
	Convey("Given a service recording to a ledger", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.LedgerPath = filepath.Join(t.TempDir(), "podium.db")

		first := service.New(service.WithConfig(cfg))
		So(first.Start(ctx), ShouldBeNil)
		for i, id := range []string{"A", "B", "C", "A"} {
			out, err := first.Submit(ctx, "", model.ScoreDelta{ParticipantID: id, Delta: int64(10 * (i + 1)), CommandID: uint64(i + 1)})
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, model.StatusApplied)
		}
		So(first.Suppress(ctx, "", "B"), ShouldBeNil)
		So(first.Stop(ctx), ShouldBeNil)

		Convey("When a new service starts on the same ledger", func() {
			second := service.New(service.WithConfig(cfg))
			So(second.Start(ctx), ShouldBeNil)
			defer stop(second)

			Convey("Then it should resume with the same ranking", func() {
				a, err := second.Rank(ctx, "", "A")
				So(err, ShouldBeNil)
				So(a.Score, ShouldEqual, 50)
				So(a.Rank, ShouldEqual, 1)

				_, err = second.Rank(ctx, "", "B")
				So(err, ShouldNotBeNil)

				e, err := second.Registry().Get("global")
				So(err, ShouldBeNil)
				So(e.Generation(), ShouldEqual, 5)
			})

			Convey("Then it should keep accepting new commands", func() {
				out, err := second.Submit(ctx, "", model.ScoreDelta{ParticipantID: "D", Delta: 1, CommandID: 1})
				So(err, ShouldBeNil)
				So(out.Status, ShouldEqual, model.StatusApplied)
			})
		})
	})
}

func TestServiceIntegration_NATS(t *testing.T) {
	Convey("Given a service publishing to NATS with a latest-event bucket", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ns, err := server.NewServer(&server.Options{
			Host:      "127.0.0.1",
			Port:      -1,
			JetStream: true,
			StoreDir:  t.TempDir(),
			NoLog:     true,
		})
		So(err, ShouldBeNil)
		go ns.Start()
		So(ns.ReadyForConnections(5*time.Second), ShouldBeTrue)
		defer func() {
			ns.Shutdown()
			ns.WaitForShutdown()
		}()

		cfg := config.New(ctx)
		cfg.NATSURL = ns.ClientURL()
		cfg.NATSKVBucket = "podium_latest"

		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(ctx), ShouldBeNil)
		defer stop(svc)

		nc, err := nats.Connect(ns.ClientURL())
		So(err, ShouldBeNil)
		defer nc.Close()
		follower, err := bus.NewNATSBus(ctx, nc, bus.WithKVBucket(cfg.NATSKVBucket))
		So(err, ShouldBeNil)
		defer func() { _ = follower.Close() }()

		var (
			mu  sync.Mutex
			got []model.ChangeEvent
		)
		So(follower.Follow(ctx, "global", func(ev model.ChangeEvent) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
		}), ShouldBeNil)

		Convey("When a command enters the top view", func() {
			out, err := svc.Submit(ctx, "", model.ScoreDelta{ParticipantID: "A", Delta: 10, CommandID: 1})
			So(err, ShouldBeNil)
			So(out.Applied(), ShouldBeTrue)

			Convey("Then the follower and the bucket both see it", func() {
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) {
					mu.Lock()
					n := len(got)
					mu.Unlock()
					if n > 0 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}

				mu.Lock()
				defer mu.Unlock()
				So(len(got), ShouldEqual, 1)
				So(got[0].Generation, ShouldEqual, 1)
				So(got[0].TopK, ShouldResemble, []model.RankedEntry{{Rank: 1, ParticipantID: "A", Score: 10}})

				// The bucket is written after the subject publish.
				var latest model.ChangeEvent
				for time.Now().Before(deadline) {
					if latest, err = follower.Latest(ctx, "global"); err == nil {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(err, ShouldBeNil)
				So(latest.Generation, ShouldEqual, 1)
				So(svc.GetStats()["nats"], ShouldEqual, true)
			})
		})
	})
}
