package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/podium/internal/engine"
)

func TestRegistry(t *testing.T) {
	Convey("Given a registry with shared options", t, func() {
		ctx := context.Background()
		reg := engine.NewRegistry(engine.WithTopK(3))
		defer func() {
			closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = reg.Close(closeCtx)
		}()

		weekly, err := reg.Open(ctx, "weekly")
		So(err, ShouldBeNil)

		Convey("When the same board is opened twice", func() {
			again, err := reg.Open(ctx, " weekly ")

			Convey("Then the same engine is returned", func() {
				So(err, ShouldBeNil)
				So(again, ShouldEqual, weekly)
				So(weekly.TopKSize(), ShouldEqual, 3)
			})
		})

		Convey("When looking up boards", func() {
			got, err := reg.Get("weekly")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, weekly)

			_, err = reg.Get("monthly")
			So(errors.Is(err, engine.ErrBoardNotFound), ShouldBeTrue)

			_, err = reg.Open(ctx, "")
			So(err, ShouldEqual, engine.ErrInvalidBoard)
		})

		Convey("When the registry starts and another board opens", func() {
			So(reg.Start(ctx), ShouldBeNil)
			global, err := reg.Open(ctx, "global")
			So(err, ShouldBeNil)

			Convey("Then every board is started and listed in order", func() {
				So(weekly.Stats(ctx).Started, ShouldBeTrue)
				So(global.Stats(ctx).Started, ShouldBeTrue)
				So(reg.Boards(), ShouldResemble, []string{"global", "weekly"})
			})
		})

		Convey("When the registry is closed", func() {
			So(reg.Close(ctx), ShouldBeNil)

			Convey("Then no board can be opened", func() {
				_, err := reg.Open(ctx, "global")
				So(err, ShouldEqual, engine.ErrClosed)
				So(reg.Start(ctx), ShouldEqual, engine.ErrClosed)
			})
		})
	})
}
