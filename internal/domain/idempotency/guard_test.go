package idempotency_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/okian/podium/internal/domain/idempotency"
	"github.com/okian/podium/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGuard(t *testing.T) {
	Convey("Given a new Guard", t, func() {
		g := idempotency.New()
		now := time.Now()
		cmd := func(seq uint64) model.ScoreDelta {
			return model.ScoreDelta{ParticipantID: "p-1", Delta: 1, CommandID: seq}
		}

		Convey("When the participant is unknown", func() {
			Convey("Then any positive command id is accepted", func() {
				So(g.Admit(nil, cmd(1), now), ShouldBeNil)
				So(g.Admit(nil, cmd(42), now), ShouldBeNil)
			})

			Convey("Then command id zero is invalid", func() {
				So(g.Admit(nil, cmd(0), now), ShouldEqual, model.ErrMissingCommandID)
			})
		})

		Convey("When the participant has applied command 5", func() {
			p := &model.Participant{ID: "p-1", Score: 10, LastSeq: 5}

			Convey("Then a higher id is accepted", func() {
				So(g.Admit(p, cmd(6), now), ShouldBeNil)
				So(g.Admit(p, cmd(100), now), ShouldBeNil)
			})

			Convey("Then the same id is a duplicate", func() {
				err := g.Admit(p, cmd(5), now)
				So(err, ShouldEqual, idempotency.ErrDuplicateCommand)
				So(idempotency.IsRejection(err), ShouldBeTrue)
				So(g.Stats().Duplicates, ShouldEqual, 1)
			})

			Convey("Then a lower id is stale", func() {
				err := g.Admit(p, cmd(4), now)
				So(err, ShouldEqual, idempotency.ErrStaleCommand)
				So(idempotency.IsRejection(err), ShouldBeTrue)
				So(g.Stats().Stale, ShouldEqual, 1)
			})
		})

		Convey("When classifying unrelated errors", func() {
			So(idempotency.IsRejection(fmt.Errorf("wrapped: %w", idempotency.ErrStaleCommand)), ShouldBeTrue)
			So(idempotency.IsRejection(model.ErrZeroDelta), ShouldBeFalse)
			So(idempotency.IsRejection(nil), ShouldBeFalse)
		})
	})
}
