package ratelimit_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/ratelimit"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLimiter(t *testing.T) {
	Convey("Given a limiter allowing 10 commands per 60s", t, func() {
		l := ratelimit.New(ratelimit.WithLimit(10), ratelimit.WithWindow(60*time.Second))
		t0 := time.Unix(1_700_000_000, 0)

		Convey("When a participant submits 11 commands inside the window", func() {
			var results []bool
			for i := 0; i < 11; i++ {
				results = append(results, l.Allow("p-1", t0.Add(time.Duration(i)*time.Second)))
			}

			Convey("Then the first 10 are allowed and the 11th is refused", func() {
				for i := 0; i < 10; i++ {
					So(results[i], ShouldBeTrue)
				}
				So(results[10], ShouldBeFalse)
			})

			Convey("Then the participant is accepted again after 60s", func() {
				So(l.Allow("p-1", t0.Add(59*time.Second)), ShouldBeFalse)
				So(l.Allow("p-1", t0.Add(60*time.Second)), ShouldBeTrue)
			})

			Convey("Then other participants are unaffected", func() {
				So(l.Allow("p-2", t0.Add(10*time.Second)), ShouldBeTrue)
			})
		})

		Convey("When used as a store gate", func() {
			cmd := model.ScoreDelta{ParticipantID: "p-3", Delta: 1, CommandID: 1}
			for i := 0; i < 10; i++ {
				So(l.Gate(nil, cmd, t0), ShouldBeNil)
			}

			Convey("Then the refusal is ErrRateLimited", func() {
				So(l.Gate(nil, cmd, t0), ShouldEqual, ratelimit.ErrRateLimited)
			})
		})

		Convey("When sweeping", func() {
			l.Allow("p-1", t0)
			l.Allow("p-2", t0.Add(30*time.Second))

			Convey("Then only expired windows are dropped", func() {
				So(l.Len(), ShouldEqual, 2)
				So(l.Sweep(t0.Add(61*time.Second)), ShouldEqual, 1)
				So(l.Len(), ShouldEqual, 1)
				So(l.Sweep(t0.Add(91*time.Second)), ShouldEqual, 1)
				So(l.Len(), ShouldEqual, 0)
			})

			Convey("Then a swept participant starts a fresh window", func() {
				l.Sweep(t0.Add(120 * time.Second))
				So(l.Allow("p-1", t0.Add(120*time.Second)), ShouldBeTrue)
			})
		})
	})

	Convey("Given a limiter with a block duration", t, func() {
		l := ratelimit.New(
			ratelimit.WithLimit(2),
			ratelimit.WithWindow(10*time.Second),
			ratelimit.WithBlockDuration(30*time.Second),
		)
		t0 := time.Unix(1_700_000_000, 0)

		So(l.Allow("p-1", t0), ShouldBeTrue)
		So(l.Allow("p-1", t0), ShouldBeTrue)
		So(l.Allow("p-1", t0.Add(time.Second)), ShouldBeFalse)

		Convey("Then the block outlasts the window", func() {
			So(l.Allow("p-1", t0.Add(15*time.Second)), ShouldBeFalse)
			So(l.Allow("p-1", t0.Add(31*time.Second)), ShouldBeTrue)
		})

		Convey("Then sweep keeps blocked windows", func() {
			So(l.Sweep(t0.Add(20*time.Second)), ShouldEqual, 0)
		})
	})

	Convey("Given concurrent submissions for one participant", t, func() {
		l := ratelimit.New(ratelimit.WithLimit(10))
		now := time.Now()
		var allowed atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow("hot", now) {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly the limit is admitted", func() {
			So(allowed.Load(), ShouldEqual, 10)
		})
	})
}

func TestInstanceLimiter(t *testing.T) {
	Convey("Given instance limiters", t, func() {
		t0 := time.Unix(1_700_000_000, 0)

		Convey("When the rate is disabled", func() {
			l := ratelimit.NewInstance(0, 0)
			Convey("Then everything is allowed", func() {
				So(l, ShouldBeNil)
				So(l.Allow(t0), ShouldBeTrue)
				release, ok := l.Reserve(t0)
				So(ok, ShouldBeTrue)
				So(func() { release() }, ShouldNotPanic)
			})
		})

		Convey("When the burst is exhausted", func() {
			l := ratelimit.NewInstance(1, 3)
			for i := 0; i < 3; i++ {
				So(l.Allow(t0), ShouldBeTrue)
			}

			Convey("Then the next token arrives after the refill interval", func() {
				So(l.Allow(t0), ShouldBeFalse)
				So(l.Allow(t0.Add(time.Second)), ShouldBeTrue)
			})
		})

		Convey("When a reserved token is released", func() {
			l := ratelimit.NewInstance(1, 1)
			release, ok := l.Reserve(t0)
			So(ok, ShouldBeTrue)

			Convey("Then the bucket is refused until release and full after it", func() {
				_, ok := l.Reserve(t0)
				So(ok, ShouldBeFalse)
				release()
				So(l.Allow(t0), ShouldBeTrue)
				So(l.Allow(t0), ShouldBeFalse)
			})
		})
	})
}
