package storetest

import (
	"context"
	"time"

	"github.com/dogmatiq/seriate/kv"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// In is a container for values that are provided to the backend-specific
// "before" function.
type In struct{}

// Out is a container for values that are provided by the backend-specific
// "before" function.
type Out struct {
	// NewStore is a function that creates a new, empty store, and returns a
	// function that must be called to destroy it.
	NewStore func() (kv.Store, func())

	// TestTimeout is the maximum duration allowed for each test.
	TestTimeout time.Duration
}

// DefaultTestTimeout is the default test timeout.
const DefaultTestTimeout = 3 * time.Second

// shortTTL is the time-to-live used to test key expiry. It is long enough
// that a store round-trip completes well within it, and short enough to keep
// the suite fast.
const shortTTL = 50 * time.Millisecond

// Declare declares generic behavioral tests for a specific kv.Store
// implementation.
func Declare(
	before func(context.Context, In) Out,
	after func(),
) {
	var (
		ctx      context.Context
		cancel   func()
		out      Out
		store    kv.Store
		tearDown func()
	)

	ginkgo.Context("standard store test suite", func() {
		ginkgo.BeforeEach(func() {
			setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelSetup()

			out = before(setupCtx, In{})

			if out.TestTimeout <= 0 {
				out.TestTimeout = DefaultTestTimeout
			}

			ctx, cancel = context.WithTimeout(context.Background(), out.TestTimeout)
			store, tearDown = out.NewStore()
		})

		ginkgo.AfterEach(func() {
			if tearDown != nil {
				tearDown()
			}

			if after != nil {
				after()
			}

			cancel()
		})

		ginkgo.Describe("func SetIfAbsent()", func() {
			ginkgo.It("sets the value if the key is absent", func() {
				ok, err := store.SetIfAbsent(ctx, "<key>", []byte("<value>"), 0)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())

				v, ok, err := store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(v).To(gomega.Equal([]byte("<value>")))
			})

			ginkgo.It("does not replace an existing value", func() {
				_, err := store.SetIfAbsent(ctx, "<key>", []byte("<original>"), 0)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				ok, err := store.SetIfAbsent(ctx, "<key>", []byte("<replacement>"), 0)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())

				v, _, err := store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(v).To(gomega.Equal([]byte("<original>")))
			})

			ginkgo.It("expires the key after the TTL elapses", func() {
				ok, err := store.SetIfAbsent(ctx, "<key>", []byte("<value>"), shortTTL)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())

				time.Sleep(shortTTL + 25*time.Millisecond)

				_, ok, err = store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())

				ok, err = store.SetIfAbsent(ctx, "<key>", []byte("<value>"), 0)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
			})

			ginkgo.It("does not expire the key before the TTL elapses", func() {
				ok, err := store.SetIfAbsent(ctx, "<key>", []byte("<value>"), 10*time.Second)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())

				_, ok, err = store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
			})
		})

		ginkgo.Describe("func Get()", func() {
			ginkgo.It("reports an absent key", func() {
				_, ok, err := store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("func Set()", func() {
			ginkgo.It("replaces an existing value", func() {
				err := store.Set(ctx, "<key>", []byte("<original>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = store.Set(ctx, "<key>", []byte("<replacement>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				v, ok, err := store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(v).To(gomega.Equal([]byte("<replacement>")))
			})
		})

		ginkgo.Describe("func IncrBy()", func() {
			ginkgo.It("treats an absent key as zero", func() {
				v, err := store.IncrBy(ctx, "<key>", 3)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(v).To(gomega.BeEquivalentTo(3))
			})

			ginkgo.It("accumulates across calls", func() {
				_, err := store.IncrBy(ctx, "<key>", 1)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				v, err := store.IncrBy(ctx, "<key>", 2)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(v).To(gomega.BeEquivalentTo(3))
			})

			ginkgo.It("operates on values written by Set()", func() {
				err := store.Set(ctx, "<key>", []byte("10"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				v, err := store.IncrBy(ctx, "<key>", 5)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(v).To(gomega.BeEquivalentTo(15))
			})
		})

		ginkgo.Describe("func DeleteIfEqual()", func() {
			ginkgo.It("deletes the key if the value matches", func() {
				err := store.Set(ctx, "<key>", []byte("<value>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				ok, err := store.DeleteIfEqual(ctx, "<key>", []byte("<value>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())

				_, ok, err = store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})

			ginkgo.It("retains the key if the value does not match", func() {
				err := store.Set(ctx, "<key>", []byte("<value>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				ok, err := store.DeleteIfEqual(ctx, "<key>", []byte("<other>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())

				_, ok, err = store.Get(ctx, "<key>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
			})

			ginkgo.It("reports an absent key without error", func() {
				ok, err := store.DeleteIfEqual(ctx, "<key>", []byte("<value>"))
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})
	})
}
