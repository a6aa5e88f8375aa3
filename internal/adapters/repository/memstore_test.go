package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newUser(id, username string) model.User {
	return model.User{
		ID:        id,
		Username:  username,
		Role:      model.RoleAnnotator,
		Status:    model.UserActive,
		CreatedAt: time.Now().UTC(),
	}
}

func newTask(id string, createdAt time.Time) model.Task {
	return model.Task{
		ID:           id,
		ImageRef:     "https://images.example.com/" + id + ".jpg",
		Options:      []string{"Cat", "Dog"},
		ReviewStatus: model.ReviewNone,
		Bounty:       0.5,
		Status:       model.TaskActive,
		CreatedAt:    createdAt,
	}
}

func TestMemStore_Users(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		Convey("When creating a user", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateUser(newUser("u1", "alice"))
			})
			So(err, ShouldBeNil)

			Convey("Then the user can be read back", func() {
				var got model.User
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					got, err = tx.GetUser("u1")
					return err
				})
				So(err, ShouldBeNil)
				So(got.Username, ShouldEqual, "alice")
			})

			Convey("And reusing the username fails with ErrDuplicate", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.CreateUser(newUser("u2", "alice"))
				})
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
			})

			Convey("And crediting the wallet accumulates", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					if err := tx.CreditWallet("u1", 1.5); err != nil {
						return err
					}
					return tx.CreditWallet("u1", 0.5)
				})
				So(err, ShouldBeNil)

				var got model.User
				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					got, err = tx.GetUser("u1")
					return err
				})
				So(got.WalletBalance, ShouldEqual, 2.0)
			})
		})

		Convey("When reading a missing user", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				_, err := tx.GetUser("ghost")
				return err
			})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemStore_Rollback(t *testing.T) {
	Convey("Given a store with one user", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		err := store.Atomically(ctx, func(tx repository.Tx) error {
			return tx.CreateUser(newUser("u1", "alice"))
		})
		So(err, ShouldBeNil)

		Convey("When a transaction fails midway", func() {
			boom := errors.New("boom")
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				if err := tx.CreditWallet("u1", 100); err != nil {
					return err
				}
				if err := tx.CreateTask(newTask("t1", time.Now().UTC())); err != nil {
					return err
				}
				return boom
			})
			So(errors.Is(err, boom), ShouldBeTrue)

			Convey("Then none of its writes survive", func() {
				var user model.User
				taskErr := store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					user, err = tx.GetUser("u1")
					if err != nil {
						return err
					}
					_, err = tx.GetTask("t1")
					return err
				})
				So(errors.Is(taskErr, repository.ErrNotFound), ShouldBeTrue)
				So(user.WalletBalance, ShouldEqual, 0)
			})
		})

		Convey("When the store is closed", func() {
			So(store.Close(), ShouldBeNil)

			Convey("Then transactions fail with ErrClosed", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error { return nil })
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestMemStore_EligibleTask(t *testing.T) {
	Convey("Given a store with several tasks", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

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

		Convey("When asking for an eligible task", func() {
			var task model.Task
			var ok bool
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				task, ok, err = tx.EligibleTask("u1", 5)
				return err
			})
			So(err, ShouldBeNil)

			Convey("Then the oldest open task wins", func() {
				So(ok, ShouldBeTrue)
				So(task.ID, ShouldEqual, "t-older")
			})
		})

		Convey("When the user already annotated the oldest task", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateAnnotation(model.Annotation{
					ID: "a1", UserID: "u1", TaskID: "t-older", Label: "Cat", CreatedAt: base,
				})
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
		})

		Convey("When the user holds a live reservation on the oldest task", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateReservation(model.Reservation{TaskID: "t-older", UserID: "u1", CreatedAt: base})
			})
			So(err, ShouldBeNil)

			var task model.Task
			var ok bool
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				task, ok, err = tx.EligibleTask("u1", 5)
				return err
			})

			Convey("Then allocation skips it", func() {
				So(ok, ShouldBeTrue)
				So(task.ID, ShouldEqual, "t-newer")
			})
		})

		Convey("When every task sits at the cap", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				for _, id := range []string{"t-older", "t-newer"} {
					task, err := tx.GetTask(id)
					if err != nil {
						return err
					}
					task.AssignedCount = 5
					if err := tx.UpdateTask(task); err != nil {
						return err
					}
				}
				return nil
			})
			So(err, ShouldBeNil)

			var ok bool
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				_, ok, err = tx.EligibleTask("u1", 5)
				return err
			})

			Convey("Then no task is offered", func() {
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestMemStore_Annotations(t *testing.T) {
	Convey("Given a store with a user and a task", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		err := store.Atomically(ctx, func(tx repository.Tx) error {
			if err := tx.CreateUser(newUser("u1", "alice")); err != nil {
				return err
			}
			return tx.CreateTask(newTask("t1", base))
		})
		So(err, ShouldBeNil)

		Convey("When the same user annotates the same task twice", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateAnnotation(model.Annotation{ID: "a1", UserID: "u1", TaskID: "t1", Label: "Cat", CreatedAt: base})
			})
			So(err, ShouldBeNil)

			err = store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.CreateAnnotation(model.Annotation{ID: "a2", UserID: "u1", TaskID: "t1", Label: "Dog", CreatedAt: base})
			})

			Convey("Then the second insert fails with ErrDuplicate", func() {
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When listing a user's annotations", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				if err := tx.CreateTask(newTask("t2", base)); err != nil {
					return err
				}
				if err := tx.CreateAnnotation(model.Annotation{ID: "a1", UserID: "u1", TaskID: "t1", Label: "Cat", CreatedAt: base}); err != nil {
					return err
				}
				return tx.CreateAnnotation(model.Annotation{ID: "a2", UserID: "u1", TaskID: "t2", Label: "Dog", CreatedAt: base.Add(time.Minute)})
			})
			So(err, ShouldBeNil)

			var anns []model.Annotation
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				anns, err = tx.AnnotationsByUser("u1")
				return err
			})

			Convey("Then entries come back newest first", func() {
				So(len(anns), ShouldEqual, 2)
				So(anns[0].ID, ShouldEqual, "a2")
				So(anns[1].ID, ShouldEqual, "a1")
			})
		})

		Convey("When marking annotations correct and settling some", func() {
			correct := true
			pay := 0.5
			paymentID := "p1"
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				if err := tx.CreateTask(newTask("t2", base)); err != nil {
					return err
				}
				if err := tx.CreateAnnotation(model.Annotation{ID: "a1", UserID: "u1", TaskID: "t1", Label: "Cat", IsCorrect: &correct, Payment: &pay, CreatedAt: base}); err != nil {
					return err
				}
				return tx.CreateAnnotation(model.Annotation{ID: "a2", UserID: "u1", TaskID: "t2", Label: "Cat", IsCorrect: &correct, Payment: &pay, PaymentID: &paymentID, CreatedAt: base})
			})
			So(err, ShouldBeNil)

			var unpaid []model.Annotation
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				unpaid, err = tx.UnpaidAnnotations()
				return err
			})

			Convey("Then only unsettled correct annotations are reported", func() {
				So(len(unpaid), ShouldEqual, 1)
				So(unpaid[0].ID, ShouldEqual, "a1")
			})
		})
	})
}

func TestMemStore_Reservations(t *testing.T) {
	Convey("Given a store with a reservation", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		err := store.Atomically(ctx, func(tx repository.Tx) error {
			return tx.CreateReservation(model.Reservation{TaskID: "t1", UserID: "u1", CreatedAt: base})
		})
		So(err, ShouldBeNil)

		Convey("Then HasReservation sees it", func() {
			var has bool
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				has, err = tx.HasReservation("u1", "t1")
				return err
			})
			So(has, ShouldBeTrue)
		})

		Convey("When looking for expired reservations", func() {
			var expired []model.Reservation
			_ = store.Atomically(ctx, func(tx repository.Tx) error {
				var err error
				expired, err = tx.ExpiredReservations(base.Add(time.Minute))
				return err
			})

			Convey("Then reservations older than the cutoff are returned", func() {
				So(len(expired), ShouldEqual, 1)
				So(expired[0].TaskID, ShouldEqual, "t1")
			})

			Convey("And a cutoff before creation returns nothing", func() {
				_ = store.Atomically(ctx, func(tx repository.Tx) error {
					var err error
					expired, err = tx.ExpiredReservations(base.Add(-time.Minute))
					return err
				})
				So(len(expired), ShouldEqual, 0)
			})
		})

		Convey("When deleting the reservation", func() {
			err := store.Atomically(ctx, func(tx repository.Tx) error {
				return tx.DeleteReservation("u1", "t1")
			})
			So(err, ShouldBeNil)

			Convey("Then it is gone and a second delete fails", func() {
				err := store.Atomically(ctx, func(tx repository.Tx) error {
					return tx.DeleteReservation("u1", "t1")
				})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
