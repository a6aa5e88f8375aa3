package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newSQLiteStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	store, err := repository.NewSQLStore("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore_Users(t *testing.T) {
	Convey("Given a fresh sqlite store", t, func() {
		ctx := context.Background()
		store := newSQLiteStore(t)

		Convey("When creating and reading a user", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateUser(newUser("u1", "alice"))
			})
			So(err, ShouldBeNil)

			var got model.User
			err = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				got, err = tx.GetUser("u1")
				return err
			})
			So(err, ShouldBeNil)
			So(got.Username, ShouldEqual, "alice")
			So(got.Role, ShouldEqual, model.RoleAnnotator)

			Convey("And a duplicate username maps to ErrDuplicate", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.CreateUser(newUser("u2", "alice"))
				})
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
			})

			Convey("And a missing user maps to ErrNotFound", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					_, err := tx.GetUser("ghost")
					return err
				})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And wallet credits persist", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.CreditWallet("u1", 2.5)
				})
				So(err, ShouldBeNil)

				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					got, err = tx.GetUser("u1")
					return err
				})
				So(got.WalletBalance, ShouldEqual, 2.5)
			})
		})
	})
}

func TestSQLStore_Rollback(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		ctx := context.Background()
		store := newSQLiteStore(t)

		Convey("When a transaction fails after writing", func() {
			boom := errors.New("boom")
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				if err := tx.CreateUser(newUser("u1", "alice")); err != nil {
					return err
				}
				return boom
			})
			So(errors.Is(err, boom), ShouldBeTrue)

			Convey("Then the write was rolled back", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					_, err := tx.GetUser("u1")
					return err
				})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestSQLStore_TasksAndAllocation(t *testing.T) {
	Convey("Given a sqlite store with tasks", t, func() {
		ctx := context.Background()
		store := newSQLiteStore(t)

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		err := store.Atomically(ctx, func(tx repository.Tx) error {
			if err := tx.CreateUser(newUser("u1", "alice")); err != nil {
				return err
			}
			if err := tx.CreateTask(newTask("t-newer", base.Add(time.Hour))); err != nil {
				return err
			}
			return tx.CreateTask(newTask("t-older", base))
		})
		So(err, ShouldBeNil)

		Convey("When reading a task back", func() {
			var got model.Task
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				got, err = tx.GetTask("t-older")
				return err
			})
			So(err, ShouldBeNil)

			Convey("Then the option list survives the round trip", func() {
				So(got.Options, ShouldResemble, []string{"Cat", "Dog"})
				So(got.Status, ShouldEqual, model.TaskActive)
				So(got.FinalLabel, ShouldBeNil)
			})
		})

		Convey("When asking for an eligible task", func() {
			var task model.Task
			var ok bool
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				task, ok, err = tx.EligibleTask("u1", 5)
				return err
			})
			So(err, ShouldBeNil)

			Convey("Then the oldest open task is offered", func() {
				So(ok, ShouldBeTrue)
				So(task.ID, ShouldEqual, "t-older")
			})
		})

		Convey("When the user annotated the oldest task", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateAnnotation(model.Annotation{ID: "a1", UserID: "u1", TaskID: "t-older", Label: "Cat", CreatedAt: base})
			})
			So(err, ShouldBeNil)

			var task model.Task
			var ok bool
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				task, ok, err = tx.EligibleTask("u1", 5)
				return err
			})

			Convey("Then allocation skips to the next task", func() {
				So(ok, ShouldBeTrue)
				So(task.ID, ShouldEqual, "t-newer")
			})

			Convey("And a second annotation on the same pair maps to ErrDuplicate", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.CreateAnnotation(model.Annotation{ID: "a2", UserID: "u1", TaskID: "t-older", Label: "Dog", CreatedAt: base})
				})
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When updating a task to completed with a final label", func() {
			label := "Cat"
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				task, err := tx.GetTask("t-older")
				if err != nil {
					return err
				}
				task.FinalLabel = &label
				task.ReviewStatus = model.ReviewReviewed
				task.Status = model.TaskCompleted
				return tx.UpdateTask(task)
			})
			So(err, ShouldBeNil)

			Convey("Then status queries reflect the change", func() {
				var active, completed []model.Task
				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					if active, err = tx.TasksByStatus(model.TaskActive); err != nil {
						return err
					}
					completed, err = tx.TasksByStatus(model.TaskCompleted)
					return err
				})
				So(len(active), ShouldEqual, 1)
				So(len(completed), ShouldEqual, 1)
				So(completed[0].ID, ShouldEqual, "t-older")
				So(completed[0].FinalLabel, ShouldNotBeNil)
				So(*completed[0].FinalLabel, ShouldEqual, "Cat")
			})
		})
	})
}

func TestSQLStore_ReservationsAndPayments(t *testing.T) {
	Convey("Given a sqlite store with a user and task", t, func() {
		ctx := context.Background()
		store := newSQLiteStore(t)

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		err := store.Atomically(ctx, func(tx repository.Tx) error {
			if err := tx.CreateUser(newUser("u1", "alice")); err != nil {
				return err
			}
			return tx.CreateTask(newTask("t1", base))
		})
		So(err, ShouldBeNil)

		Convey("When creating a reservation", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateReservation(model.Reservation{TaskID: "t1", UserID: "u1", CreatedAt: base})
			})
			So(err, ShouldBeNil)

			Convey("Then it is visible and expirable", func() {
				var has bool
				var expired []model.Reservation
				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					if has, err = tx.HasReservation("u1", "t1"); err != nil {
						return err
					}
					expired, err = tx.ExpiredReservations(base.Add(time.Minute))
					return err
				})
				So(has, ShouldBeTrue)
				So(len(expired), ShouldEqual, 1)
			})

			Convey("And deleting it twice fails the second time", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.DeleteReservation("u1", "t1")
				})
				So(err, ShouldBeNil)

				err = store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.DeleteReservation("u1", "t1")
				})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When settling a payment", func() {
			correct := true
			pay := 0.5
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				if err := tx.CreateAnnotation(model.Annotation{ID: "a1", UserID: "u1", TaskID: "t1", Label: "Cat", IsCorrect: &correct, Payment: &pay, CreatedAt: base}); err != nil {
					return err
				}
				return tx.CreatePayment(model.Payment{ID: "p1", UserID: "u1", Amount: 0.5, CreatedAt: base})
			})
			So(err, ShouldBeNil)

			Convey("Then the unpaid report includes the annotation until stamped", func() {
				var unpaid []model.Annotation
				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					unpaid, err = tx.UnpaidAnnotations()
					return err
				})
				So(len(unpaid), ShouldEqual, 1)

				paymentID := "p1"
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					a := unpaid[0]
					a.PaymentID = &paymentID
					return tx.UpdateAnnotation(a)
				})
				So(err, ShouldBeNil)

				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					unpaid, err = tx.UnpaidAnnotations()
					return err
				})
				So(len(unpaid), ShouldEqual, 0)
			})

			Convey("And the payment can be read back", func() {
				var p model.Payment
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					p, err = tx.GetPayment("p1")
					return err
				})
				So(err, ShouldBeNil)
				So(p.Amount, ShouldEqual, 0.5)
			})
		})
	})
}
