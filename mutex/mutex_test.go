package mutex_test

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/seriate/fixtures"
	"github.com/dogmatiq/seriate/kv/memorykv"
	. "github.com/dogmatiq/seriate/mutex"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Mutex", func() {
	var (
		ctx     context.Context
		cancel  func()
		store   *memorykv.Store
		subject *Mutex
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)

		store = &memorykv.Store{}
		subject = &Mutex{
			Store: store,
		}
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Acquire()", func() {
		It("acquires an uncontended lock immediately", func() {
			token, err := subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(token).NotTo(BeEmpty())
		})

		It("fails fast if this instance already holds the lock", func() {
			_, err := subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			_, err = subject.Acquire(ctx, "<id>")
			Expect(err).To(Equal(ErrAlreadyHeld))
		})

		It("does not conflate locks for different resources", func() {
			_, err := subject.Acquire(ctx, "<id-1>")
			Expect(err).ShouldNot(HaveOccurred())

			_, err = subject.Acquire(ctx, "<id-2>")
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("blocks while another instance holds the lock", func() {
			other := &Mutex{
				Store: store,
			}

			token, err := other.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			acquired := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(acquired)

				_, err := subject.Acquire(ctx, "<id>")
				Expect(err).ShouldNot(HaveOccurred())
			}()

			Consistently(acquired, 100*time.Millisecond).ShouldNot(BeClosed())

			err = other.Release(ctx, "<id>", token)
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(acquired, 3*time.Second).Should(BeClosed())
		})

		It("acquires the lock once a crashed holder's TTL elapses", func() {
			other := &Mutex{
				Store: store,
				TTL:   50 * time.Millisecond,
			}

			// Simulate a crash by never releasing.
			_, err := other.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			_, err = subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("returns an error if the store is unavailable", func() {
			subject.Store = &fixtures.StoreStub{
				SetIfAbsentFunc: func(context.Context, string, []byte, time.Duration) (bool, error) {
					return false, errors.New("<store error>")
				},
			}

			_, err := subject.Acquire(ctx, "<id>")
			Expect(err).To(MatchError("<store error>"))
		})

		It("returns an error if ctx is canceled while waiting", func() {
			other := &Mutex{
				Store: store,
			}

			_, err := other.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			waitCtx, cancelWait := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancelWait()

			_, err = subject.Acquire(waitCtx, "<id>")
			Expect(err).To(Equal(context.DeadlineExceeded))
		})

		It("can be retried after a failed acquisition", func() {
			stub := &fixtures.StoreStub{
				SetIfAbsentFunc: func(context.Context, string, []byte, time.Duration) (bool, error) {
					return false, errors.New("<store error>")
				},
			}
			subject.Store = stub

			_, err := subject.Acquire(ctx, "<id>")
			Expect(err).Should(HaveOccurred())

			stub.SetIfAbsentFunc = nil
			stub.Store = store

			_, err = subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
		})
	})

	Describe("func Release()", func() {
		It("allows the lock to be acquired again", func() {
			token, err := subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			err = subject.Release(ctx, "<id>", token)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("does not release a lock that has been taken over", func() {
			stale, err := subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			// Expire the lock record, then let another instance take the
			// lock over before the original holder releases it.
			_, err = store.DeleteIfEqual(ctx, "lock:<id>", []byte(stale))
			Expect(err).ShouldNot(HaveOccurred())

			other := &Mutex{
				Store: store,
			}

			_, err = other.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			// The stale release must be a safe no-op.
			err = subject.Release(ctx, "<id>", stale)
			Expect(err).ShouldNot(HaveOccurred())

			// The takeover's lock must still be in place.
			waitCtx, cancelWait := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancelWait()

			_, err = subject.Acquire(waitCtx, "<id>")
			Expect(err).To(Equal(context.DeadlineExceeded))
		})

		It("returns an error if the store is unavailable", func() {
			token, err := subject.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			subject.Store = &fixtures.StoreStub{
				DeleteIfEqualFunc: func(context.Context, string, []byte) (bool, error) {
					return false, errors.New("<store error>")
				},
			}

			err = subject.Release(ctx, "<id>", token)
			Expect(err).To(MatchError("<store error>"))
		})
	})
})
