package consensus_test

import (
	"testing"

	consensus "github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/consensus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestResolver_Evaluate(t *testing.T) {
	Convey("Given a resolver with the default cap", t, func() {
		r := consensus.New()

		Convey("Then the cap should be five", func() {
			So(r.Redundancy(), ShouldEqual, 5)
		})

		Convey("When fewer labels than the cap have been submitted", func() {
			out := r.Evaluate([]string{"Cat", "Cat", "Cat", "Cat"})

			Convey("Then the task stays open", func() {
				So(out.Verdict, ShouldEqual, consensus.Open)
			})
		})

		Convey("When the cap is reached with unanimous labels", func() {
			out := r.Evaluate([]string{"Cat", "Cat", "Cat", "Cat", "Cat"})

			Convey("Then the task resolves to the unanimous label", func() {
				So(out.Verdict, ShouldEqual, consensus.Resolved)
				So(out.Label, ShouldEqual, "Cat")
			})
		})

		Convey("When the cap is reached with a single dissent", func() {
			out := r.Evaluate([]string{"Cat", "Cat", "Cat", "Cat", "Dog"})

			Convey("Then the task is a conflict even though a clear majority exists", func() {
				So(out.Verdict, ShouldEqual, consensus.Conflict)
				So(out.Label, ShouldEqual, "Cat")
			})
		})
	})

	Convey("Given a resolver with a cap of two", t, func() {
		r := consensus.New(consensus.WithRedundancy(2))

		Convey("When two matching labels arrive", func() {
			out := r.Evaluate([]string{"Cat", "Cat"})

			Convey("Then the task resolves", func() {
				So(out.Verdict, ShouldEqual, consensus.Resolved)
				So(out.Label, ShouldEqual, "Cat")
			})
		})

		Convey("When two different labels arrive", func() {
			out := r.Evaluate([]string{"Cat", "Dog"})

			Convey("Then the task is a conflict", func() {
				So(out.Verdict, ShouldEqual, consensus.Conflict)
			})
		})

		Convey("When a single label has arrived", func() {
			out := r.Evaluate([]string{"Dog"})

			Convey("Then the task stays open", func() {
				So(out.Verdict, ShouldEqual, consensus.Open)
			})
		})
	})

	Convey("Given a resolver with a cap of three", t, func() {
		r := consensus.New(consensus.WithRedundancy(3))

		Convey("When a two-to-one split reaches the cap", func() {
			out := r.Evaluate([]string{"Dog", "Cat", "Dog"})

			Convey("Then the majority does not win; the task conflicts", func() {
				So(out.Verdict, ShouldEqual, consensus.Conflict)
				So(out.Label, ShouldEqual, "Dog")
			})
		})
	})

	Convey("Given a resolver with an invalid cap option", t, func() {
		r := consensus.New(consensus.WithRedundancy(0))

		Convey("Then the default cap is kept", func() {
			So(r.Redundancy(), ShouldEqual, 5)
		})
	})
}

func TestMode(t *testing.T) {
	Convey("Given sets of submitted labels", t, func() {
		Convey("When the set is empty", func() {
			So(consensus.Mode(nil), ShouldEqual, "")
		})

		Convey("When one label dominates", func() {
			So(consensus.Mode([]string{"Dog", "Cat", "Dog"}), ShouldEqual, "Dog")
		})

		Convey("When two labels tie", func() {
			Convey("Then the lexicographically smaller label wins", func() {
				So(consensus.Mode([]string{"Dog", "Cat", "Dog", "Cat"}), ShouldEqual, "Cat")
				So(consensus.Mode([]string{"Cat", "Dog", "Cat", "Dog"}), ShouldEqual, "Cat")
			})
		})

		Convey("When every label is distinct", func() {
			So(consensus.Mode([]string{"Cat", "Dog", "Bird"}), ShouldEqual, "Bird")
		})
	})
}
