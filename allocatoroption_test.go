package seriate

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func WithLockTTL()", func() {
	It("sets the lock TTL", func() {
		opts := resolveAllocatorOptions(
			WithLockTTL(10 * time.Second),
		)

		Expect(opts.LockTTL).To(Equal(10 * time.Second))
	})

	It("uses the default if the duration is zero", func() {
		opts := resolveAllocatorOptions(
			WithLockTTL(0),
		)

		Expect(opts.LockTTL).To(Equal(DefaultLockTTL))
	})

	It("panics if the duration is negative", func() {
		Expect(func() {
			WithLockTTL(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithAcquireBackoff()", func() {
	It("sets the backoff strategy", func() {
		p := backoff.Constant(10 * time.Second)

		opts := resolveAllocatorOptions(
			WithAcquireBackoff(p),
		)

		Expect(opts.AcquireBackoff(nil, 1)).To(Equal(10 * time.Second))
	})

	It("uses the default if the strategy is nil", func() {
		opts := resolveAllocatorOptions(
			WithAcquireBackoff(nil),
		)

		Expect(opts.AcquireBackoff).ToNot(BeNil())
	})
})

var _ = Describe("func WithLogger()", func() {
	It("sets the logger", func() {
		l := &logging.BufferedLogger{}

		opts := resolveAllocatorOptions(
			WithLogger(l),
		)

		Expect(opts.Logger).To(BeIdenticalTo(l))
	})

	It("uses the default if the logger is nil", func() {
		opts := resolveAllocatorOptions(
			WithLogger(nil),
		)

		Expect(opts.Logger).To(BeIdenticalTo(DefaultLogger))
	})
})
