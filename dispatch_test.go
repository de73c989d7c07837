package seriate_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	. "github.com/dogmatiq/seriate"
	"github.com/dogmatiq/seriate/fixtures"
	"github.com/dogmatiq/seriate/kv/memorykv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Allocator (dispatch protocol)", func() {
	var (
		ctx     context.Context
		cancel  func()
		store   *memorykv.Store
		querier *fixtures.QuerierStub
		subject *Allocator
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		store = &memorykv.Store{}
		querier = &fixtures.QuerierStub{
			PendingSequenceFunc: func(context.Context, string) (uint64, error) {
				return 10, nil
			},
		}

		subject = New(store, querier)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Dispatch()", func() {
		It("submits the reserved sequence number", func() {
			seq, err := subject.Dispatch(
				ctx,
				"<id>",
				func(_ context.Context, seq uint64) error {
					Expect(seq).To(BeEquivalentTo(10))
					return nil
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(seq).To(BeEquivalentTo(10))
		})

		It("consumes the number when submission succeeds", func() {
			_, err := subject.Dispatch(
				ctx,
				"<id>",
				func(context.Context, uint64) error {
					return nil
				},
			)
			Expect(err).ShouldNot(HaveOccurred())

			seq, err := subject.Reserve(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(seq).To(BeEquivalentTo(11))
		})

		It("does not consume the number when submission fails", func() {
			_, err := subject.Dispatch(
				ctx,
				"<id>",
				func(context.Context, uint64) error {
					return errors.New("<submit error>")
				},
			)
			Expect(err).To(MatchError("<submit error>"))

			// A retry is issued the same number, leaving no gap in the
			// sequence.
			seq, err := subject.Dispatch(
				ctx,
				"<id>",
				func(context.Context, uint64) error {
					return nil
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(seq).To(BeEquivalentTo(10))
		})

		It("issues consecutive numbers to concurrent dispatchers in separate processes", func() {
			const (
				processes     = 3
				perProcess    = 10
				base          = 10
				totalExpected = processes * perProcess
			)

			var (
				m      sync.Mutex
				issued []uint64
			)

			submit := func(_ context.Context, seq uint64) error {
				m.Lock()
				defer m.Unlock()

				issued = append(issued, seq)

				return nil
			}

			var group sync.WaitGroup
			for p := 0; p < processes; p++ {
				// Each allocator stands in for a separate process; they
				// share nothing but the store.
				alloc := New(store, querier)

				group.Add(1)
				go func() {
					defer GinkgoRecover()
					defer group.Done()

					for i := 0; i < perProcess; i++ {
						_, err := alloc.Dispatch(ctx, "<id>", submit)
						Expect(err).ShouldNot(HaveOccurred())
					}
				}()
			}
			group.Wait()

			Expect(issued).To(HaveLen(totalExpected))

			sort.Slice(issued, func(i, j int) bool {
				return issued[i] < issued[j]
			})

			for i, seq := range issued {
				Expect(seq).To(
					BeEquivalentTo(base+i),
					"sequence numbers are not consecutive",
				)
			}
		})
	})

	Describe("func DispatchAt()", func() {
		It("submits at the explicit sequence number", func() {
			err := subject.DispatchAt(
				ctx,
				"<id>",
				42,
				func(_ context.Context, seq uint64) error {
					Expect(seq).To(BeEquivalentTo(42))
					return nil
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("continues the sequence from the explicit number", func() {
			err := subject.DispatchAt(
				ctx,
				"<id>",
				42,
				func(context.Context, uint64) error {
					return nil
				},
			)
			Expect(err).ShouldNot(HaveOccurred())

			seq, err := subject.Reserve(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(seq).To(BeEquivalentTo(43))
		})

		It("does not consume the number when submission fails", func() {
			err := subject.DispatchAt(
				ctx,
				"<id>",
				42,
				func(context.Context, uint64) error {
					return errors.New("<submit error>")
				},
			)
			Expect(err).To(MatchError("<submit error>"))

			seq, err := subject.Reserve(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(seq).To(BeEquivalentTo(42))
		})
	})
})
