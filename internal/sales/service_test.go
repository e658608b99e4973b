package sales

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
	"github.com/odyssey-erp/arap/internal/receipts"
	"github.com/odyssey-erp/arap/internal/shared"
)

type fixture struct {
	repo        *memoryRepo
	receivables *fakeReceivables
	proofs      *fakeProofs
	audit       *recordingAudit
	service     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: newMemoryRepo(), receivables: newFakeReceivables(), audit: &recordingAudit{}}
	f.proofs = &fakeProofs{gateway: NewGateway(f.repo), receivables: f.receivables, decision: receipts.DecisionManualReview}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(f.repo, f.receivables, f.proofs, f.audit, logger)
	return f
}

var png = receipts.Image{Data: []byte("\x89PNG\r\n\x1a\n"), MimeType: "image/png"}

func TestCreateSaleOpensReceivable(t *testing.T) {
	f := newFixture(t)
	res, err := f.service.CreateSale(context.Background(), CreateSaleInput{CustomerName: " Ana ", Total: money.MustParse("320.00")})
	require.NoError(t, err)
	require.Equal(t, "Ana", res.Sale.CustomerName)
	require.Equal(t, StatusPending, res.Sale.Status)
	require.Equal(t, res.Sale.ID, res.Receivable.OriginID)
	require.Equal(t, money.MustParse("320.00"), res.Receivable.OriginalAmount)
	require.Nil(t, res.Proof)
	require.Empty(t, f.proofs.inputs)
	require.Equal(t, []string{"sale.create"}, f.audit.actions)
}

func TestCreateSaleRejectsNonPositiveTotal(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateSale(context.Background(), CreateSaleInput{Total: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	bad := int64(0)
	_, err = f.service.CreateSale(context.Background(), CreateSaleInput{Total: 100, PaymentAccountID: &bad})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.repo.items)
}

func TestCreateSaleWithMatchingProofFinalizes(t *testing.T) {
	f := newFixture(t)
	f.proofs.decision = receipts.DecisionAutoConfirm
	account := int64(10)

	res, err := f.service.CreateSale(context.Background(), CreateSaleInput{
		Total:            money.MustParse("99.90"),
		PaymentAccountID: &account,
		Proof:            &png,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Proof)
	require.True(t, res.Proof.Confirmed)
	require.Equal(t, StatusFinalized, res.Sale.Status)
	require.Equal(t, obligations.StatusSettled, res.Receivable.Status)
	require.Equal(t, int64(10), f.proofs.inputs[0].AccountID)
	require.Equal(t, res.Receivable.ID, f.proofs.inputs[0].ObligationID)
}

func TestCreateSaleProofNeedsReviewLeavesPending(t *testing.T) {
	f := newFixture(t)
	res, err := f.service.CreateSale(context.Background(), CreateSaleInput{Total: money.MustParse("10.00"), Proof: &png})
	require.NoError(t, err)
	require.Equal(t, receipts.DecisionManualReview, res.Proof.Assessment.Decision)
	require.Equal(t, StatusPending, res.Sale.Status)
	require.Equal(t, obligations.StatusPending, res.Receivable.Status)
}

func TestCreateSaleProofFailureDoesNotFailSale(t *testing.T) {
	f := newFixture(t)
	f.proofs.err = errBoom
	res, err := f.service.CreateSale(context.Background(), CreateSaleInput{Total: money.MustParse("10.00"), Proof: &png})
	require.NoError(t, err)
	require.Nil(t, res.Proof)
	require.Equal(t, obligations.StatusPending, res.Receivable.Status)
}

func TestCreateSaleCancelsOrphanWhenReceivableFails(t *testing.T) {
	f := newFixture(t)
	f.receivables.createErr = errBoom
	_, err := f.service.CreateSale(context.Background(), CreateSaleInput{Total: money.MustParse("10.00")})
	require.ErrorIs(t, err, errBoom)
	require.Len(t, f.repo.items, 1)
	require.Equal(t, StatusCancelled, f.repo.items[1].Status)
}

func TestCancelSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.service.CreateSale(ctx, CreateSaleInput{Total: money.MustParse("50.00"), Notes: "balcão"})
	require.NoError(t, err)

	_, err = f.service.CancelSale(ctx, res.Sale.ID, "   ")
	require.ErrorIs(t, err, shared.ErrValidation)

	sale, err := f.service.CancelSale(ctx, res.Sale.ID, "customer gave up")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, sale.Status)
	require.Equal(t, "balcão\ncancelled: customer gave up", sale.Notes)
	require.Equal(t, []string{"customer gave up"}, f.receivables.notes[res.Sale.ID])

	_, err = f.service.CancelSale(ctx, res.Sale.ID, "again")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.service.CancelSale(ctx, 999, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, []string{"sale.create", "sale.cancel"}, f.audit.actions)
}

func TestGatewayNeverRevivesCancelledSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gw := NewGateway(f.repo)
	res, err := f.service.CreateSale(ctx, CreateSaleInput{Total: money.MustParse("5.00")})
	require.NoError(t, err)

	ref, err := gw.GetSale(ctx, res.Sale.ID)
	require.NoError(t, err)
	require.Equal(t, string(StatusPending), ref.Status)

	require.NoError(t, gw.MarkFinalized(ctx, res.Sale.ID))
	require.NoError(t, gw.MarkFinalized(ctx, res.Sale.ID))

	_, err = f.service.CancelSale(ctx, res.Sale.ID, "refund")
	require.NoError(t, err)
	require.ErrorIs(t, gw.MarkFinalized(ctx, res.Sale.ID), shared.ErrInvalidState)

	_, err = gw.GetSale(ctx, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
