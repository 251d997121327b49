package payments

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRateLimiterAllow(t *testing.T) {
	Convey("Given a limiter with capacity 2", t, func() {
		clock := time.Unix(1000, 0)
		rl := NewRateLimiter(2, time.Second)
		rl.now = func() time.Time { return clock }
		rl.last = clock

		ok1 := rl.Allow()
		ok2 := rl.Allow()
		ok3 := rl.Allow()

		Convey("Then the third call should be limited", func() {
			So(ok1, ShouldBeTrue)
			So(ok2, ShouldBeTrue)
			So(ok3, ShouldBeFalse)
			So(rl.WaitTime(), ShouldEqual, 500*time.Millisecond)
		})

		Convey("And after a refill it allows again", func() {
			clock = clock.Add(time.Second)
			So(rl.Allow(), ShouldBeTrue)
		})

		Convey("And a reset restores the full capacity", func() {
			rl.Reset()
			So(rl.Allow(), ShouldBeTrue)
			So(rl.Allow(), ShouldBeTrue)
		})
	})
}

func TestRateLimiterDisabled(t *testing.T) {
	Convey("Given a limiter without a rate", t, func() {
		rl := NewRateLimiter(0, time.Second)

		Convey("Then every call is allowed", func() {
			for range 100 {
				So(rl.Allow(), ShouldBeTrue)
			}
		})
	})
}

func TestKeyedLimiter(t *testing.T) {
	Convey("Given a keyed limiter with capacity 1", t, func() {
		keyed := NewKeyedLimiter(1, time.Hour)

		Convey("Then each key gets its own bucket", func() {
			So(keyed.Allow("a"), ShouldBeTrue)
			So(keyed.Allow("a"), ShouldBeFalse)
			So(keyed.Allow("b"), ShouldBeTrue)
		})
	})
}
