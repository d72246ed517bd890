package dedupe_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	dedupe "github.com/okian/gradeetl/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
				So(d.Seen("a.csv"), ShouldBeFalse)
			})
		})

		Convey("When creating a deduper seeded with keys", func() {
			d := dedupe.NewInMemoryDeduper(
				dedupe.WithCapacity(8),
				dedupe.WithKeys([]string{"b.csv", "a.csv", "b.csv"}),
			)

			Convey("Then the seeded keys should count as seen once each", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.Seen("a.csv"), ShouldBeTrue)
				So(d.SeenAndRecord("b.csv"), ShouldBeTrue)
				So(d.Seen("c.csv"), ShouldBeFalse)
			})
		})

		Convey("When recording keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key is new", func() {
				seen := d.SeenAndRecord("000042")

				Convey("Then it should return false and record the key", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
					So(d.Seen("000042"), ShouldBeTrue)
				})
			})

			Convey("And the key was already seen", func() {
				d.SeenAndRecord("000042")
				seen := d.SeenAndRecord("000042")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And Seen is used to peek", func() {
				So(d.Seen("000001"), ShouldBeFalse)

				Convey("Then peeking should not record", func() {
					So(d.Size(), ShouldEqual, 0)
				})
			})

			Convey("And many keys are recorded", func() {
				const numKeys = 1000
				for i := 1; i <= numKeys; i++ {
					So(d.SeenAndRecord(fmt.Sprintf("%06d", i)), ShouldBeFalse)
				}

				Convey("Then all keys should be kept without eviction", func() {
					So(d.Size(), ShouldEqual, int64(numKeys))
					So(d.Seen("000001"), ShouldBeTrue)
					So(d.Seen("001000"), ShouldBeTrue)
				})
			})
		})

		Convey("When peeking at seeded keys many times", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithKeys([]string{"a.csv"}))
			for range 3 {
				So(d.Seen("a.csv"), ShouldBeTrue)
				So(d.Seen("b.csv"), ShouldBeFalse)
			}

			Convey("Then nothing new should be recorded", func() {
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper()
		const numGoroutines = 10
		const keysPerGoroutine = 100

		Convey("When multiple goroutines record the same keys concurrently", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0

			for i := 0; i < numGoroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < keysPerGoroutine; j++ {
						if !d.SeenAndRecord(fmt.Sprintf("key-%d", j)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each key should be reported new exactly once", func() {
				So(fresh, ShouldEqual, keysPerGoroutine)
				So(d.Size(), ShouldEqual, int64(keysPerGoroutine))
			})
		})
	})
}

func TestDedupeEdgeCases(t *testing.T) {
	Convey("Given a deduper with edge cases", t, func() {
		Convey("When recording empty string", func() {
			d := dedupe.NewInMemoryDeduper()

			So(d.SeenAndRecord(""), ShouldBeFalse)
			So(d.SeenAndRecord(""), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 1)
		})

		Convey("When recording very long strings", func() {
			d := dedupe.NewInMemoryDeduper()
			longString := strings.Repeat("a", 10000)

			So(d.SeenAndRecord(longString), ShouldBeFalse)
			So(d.SeenAndRecord(longString), ShouldBeTrue)
		})

		Convey("When capacity is negative", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(-1))

			So(d, ShouldNotBeNil)
			So(d.SeenAndRecord("x"), ShouldBeFalse)
		})
	})
}
