package loadgen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/podium/internal/adapters/http/api"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestGenerateAndPartition(t *testing.T) {
	Convey("Given a small load configuration", t, func() {
		cfg := &Config{BaseURL: "http://x", Participants: 5, Commands: 3, MaxDelta: 4, TopN: 3, Workers: 2}
		So(cfg.Validate(), ShouldBeNil)
		stats := &Stats{}

		seqs := generate(context.Background(), cfg, stats)

		Convey("Then each participant gets an ordered sequence", func() {
			So(stats.Generated, ShouldEqual, 15)
			So(len(seqs), ShouldEqual, 5)
			for _, seq := range seqs {
				for i, cmd := range seq {
					So(cmd.CommandID, ShouldEqual, uint64(i+1))
					So(cmd.ParticipantID, ShouldEqual, seq[0].ParticipantID)
					So(cmd.Delta >= 1 && cmd.Delta <= 4, ShouldBeTrue)
				}
			}
		})

		Convey("Then partitioning keeps sequences whole", func() {
			parts := partition(seqs, 2)
			So(len(parts), ShouldEqual, 2)
			So(len(parts[0])+len(parts[1]), ShouldEqual, 5)
			So(len(partition(seqs, 10)), ShouldEqual, 5)
		})
	})

	Convey("Given invalid configurations", t, func() {
		So(errors.Is((&Config{}).Validate(), ErrInvalidConfig), ShouldBeTrue)
		So(errors.Is((&Config{BaseURL: "u", Participants: 1, Commands: 1, TopN: 1, Workers: 1}).Validate(), ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestVerify(t *testing.T) {
	Convey("Given tallied scores with a tie", t, func() {
		expected := Expected(map[string]int64{"b": 10, "a": 10, "c": 30})

		Convey("Then ties order by participant id", func() {
			So(expected, ShouldResemble, []Entry{
				{Rank: 1, ParticipantID: "c", Score: 30},
				{Rank: 2, ParticipantID: "a", Score: 10},
				{Rank: 3, ParticipantID: "b", Score: 10},
			})
		})

		Convey("Then a matching leaderboard has no differences", func() {
			So(verify(expected, expected[:2], 2), ShouldBeEmpty)
		})

		Convey("Then swapped rows are reported", func() {
			served := []Entry{expected[0], expected[2]}
			So(len(verify(expected, served, 2)), ShouldEqual, 1)
			So(len(verify(expected, served[:1], 2)), ShouldEqual, 1)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a podium service behind an HTTP server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		scfg := config.New(ctx)
		scfg.RateLimitMax = 1000
		svc := service.New(service.WithConfig(scfg))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		mux := http.NewServeMux()
		api.NewServer(svc, svc, scfg.MaxLeaderboardLimit).Register(ctx, mux)
		ts := httptest.NewServer(mux)
		defer ts.Close()

		Convey("When a load run completes", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:      ts.URL,
				Participants: 20,
				Commands:     4,
				MaxDelta:     50,
				ReplayEvery:  3,
				TopN:         10,
				Workers:      4,
				Timeout:      5 * time.Second,
			})

			Convey("Then every command applies once and the leaderboard matches", func() {
				So(err, ShouldBeNil)
				So(stats.Applied, ShouldEqual, 80)
				So(stats.Duplicate, ShouldBeGreaterThan, 0)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.LeaderboardEntries, ShouldEqual, 10)
				So(stats.Mismatches, ShouldBeEmpty)
			})
		})

		Convey("When the service is unreachable", func() {
			_, err := Run(ctx, &Config{
				BaseURL: "http://127.0.0.1:1", Participants: 1, Commands: 1, MaxDelta: 1, TopN: 1, Workers: 1,
				Timeout: time.Second,
			})

			Convey("Then the run fails the health check", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
