package batch

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/safeqtest"
	"github.com/iov-one/safeq/x/conflict"
	. "github.com/smartystreets/goconvey/convey"
)

func nonces(txs []*safeq.Transaction) []uint64 {
	res := make([]uint64, len(txs))
	for i, t := range txs {
		res[i] = t.Nonce()
	}
	return res
}

func TestCalculate(t *testing.T) {
	owners := safeqtest.NewOwners(t, 3)
	account := safeqtest.NewAccount(t, 2, owners...)
	account.Nonce = 5
	confirmed := owners[:2]
	none := func(common.Hash) bool { return false }

	Convey("Given an account at nonce 5", t, func() {
		Convey("confirmed transactions up to an unconfirmed one are batched", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, confirmed),
				safeqtest.NewTx(t, account, 6, confirmed),
				safeqtest.NewTx(t, account, 7, confirmed),
				safeqtest.NewTx(t, account, 8, owners[:1]),
				safeqtest.NewTx(t, account, 9, confirmed),
			}
			txs := Calculate(conflict.Resolve(queue), account, none, DefaultLimit)
			So(nonces(txs), ShouldResemble, []uint64{5, 6, 7})
		})

		Convey("a missing nonce stops the batch", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, confirmed),
				safeqtest.NewTx(t, account, 6, confirmed),
				safeqtest.NewTx(t, account, 8, confirmed),
			}
			txs := Calculate(conflict.Resolve(queue), account, none, DefaultLimit)
			So(nonces(txs), ShouldResemble, []uint64{5, 6})
		})

		Convey("stale transactions are skipped", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 3, confirmed),
				safeqtest.NewTx(t, account, 4, confirmed),
				safeqtest.NewTx(t, account, 5, confirmed),
				safeqtest.NewTx(t, account, 6, confirmed),
			}
			txs := Calculate(conflict.Resolve(queue), account, none, DefaultLimit)
			So(nonces(txs), ShouldResemble, []uint64{5, 6})
		})

		Convey("a single transaction is not a batch", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, confirmed),
				safeqtest.NewTx(t, account, 6, owners[:1]),
			}
			So(Calculate(conflict.Resolve(queue), account, none, DefaultLimit), ShouldBeEmpty)
		})

		Convey("the current nonce must be confirmed", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, owners[:1]),
				safeqtest.NewTx(t, account, 6, confirmed),
				safeqtest.NewTx(t, account, 7, confirmed),
			}
			So(Calculate(conflict.Resolve(queue), account, none, DefaultLimit), ShouldBeEmpty)
		})

		Convey("the batch is cut at the limit", func() {
			var queue []*safeq.Transaction
			for n := uint64(5); n < 20; n++ {
				queue = append(queue, safeqtest.NewTx(t, account, n, confirmed))
			}
			txs := Calculate(conflict.Resolve(queue), account, none, DefaultLimit)
			So(len(txs), ShouldEqual, DefaultLimit)
			So(txs[len(txs)-1].Nonce(), ShouldEqual, 14)
		})

		Convey("a transaction being submitted ends the batch", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, confirmed),
				safeqtest.NewTx(t, account, 6, confirmed),
				safeqtest.NewTx(t, account, 7, confirmed),
			}
			submitting := queue[2].ID
			inFlight := func(id common.Hash) bool { return id == submitting }
			txs := Calculate(conflict.Resolve(queue), account, inFlight, DefaultLimit)
			So(nonces(txs), ShouldResemble, []uint64{5, 6})

			submitting = queue[0].ID
			So(Calculate(conflict.Resolve(queue), account, inFlight, DefaultLimit), ShouldBeEmpty)
		})

		Convey("an alternative being submitted blocks its nonce", func() {
			alternative := safeqtest.NewTx(t, account, 5, owners[:1], safeqtest.WithValue(7))
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, confirmed),
				alternative,
				safeqtest.NewTx(t, account, 6, confirmed),
			}
			inFlight := func(id common.Hash) bool { return id == alternative.ID }
			So(Calculate(conflict.Resolve(queue), account, inFlight, DefaultLimit), ShouldBeEmpty)
		})

		Convey("the latest confirmed member of a conflict is picked", func() {
			older := safeqtest.NewTx(t, account, 5, confirmed, safeqtest.WithSubmittedAt(10))
			newer := safeqtest.NewTx(t, account, 5, confirmed, safeqtest.WithValue(2), safeqtest.WithSubmittedAt(20))
			unsigned := safeqtest.NewTx(t, account, 5, nil, safeqtest.WithValue(3), safeqtest.WithSubmittedAt(30))
			next := safeqtest.NewTx(t, account, 6, confirmed)
			txs := Calculate(conflict.Resolve([]*safeq.Transaction{older, newer, unsigned, next}), account, none, DefaultLimit)
			So(IDs(txs), ShouldResemble, []common.Hash{newer.ID, next.ID})
		})

		Convey("an executed nonce ends the batch", func() {
			queue := []*safeq.Transaction{
				safeqtest.NewTx(t, account, 5, confirmed, safeqtest.WithStatus(safeq.StatusSuccess)),
				safeqtest.NewTx(t, account, 5, confirmed, safeqtest.WithValue(2)),
				safeqtest.NewTx(t, account, 6, confirmed),
			}
			So(Calculate(conflict.Resolve(queue), account, none, DefaultLimit), ShouldBeEmpty)
		})
	})
}

func TestBatchIsContiguous(t *testing.T) {
	owners := safeqtest.NewOwners(t, 2)
	account := safeqtest.NewAccount(t, 2, owners...)
	account.Nonce = 3

	Convey("Every batch is a contiguous run starting at the account nonce", t, func() {
		// Bit i of the mask decides if nonce i is fully confirmed.
		for mask := 0; mask < 1<<7; mask++ {
			var queue []*safeq.Transaction
			for n := uint64(0); n < 7; n++ {
				signers := owners[:1]
				if mask&(1<<n) != 0 {
					signers = owners
				}
				queue = append(queue, safeqtest.NewTx(t, account, n, signers))
			}
			txs := Calculate(conflict.Resolve(queue), account, nil, 3)
			So(len(txs) == 0 || len(txs) >= 2, ShouldBeTrue)
			So(len(txs), ShouldBeLessThanOrEqualTo, 3)
			for i, tx := range txs {
				So(tx.Nonce(), ShouldEqual, account.Nonce+uint64(i))
				So(tx.IsFullyConfirmed(), ShouldBeTrue)
			}
		}
	})
}
