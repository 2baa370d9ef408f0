package service

import (
	"context"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestInitiatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches the authority and builds the redirect", func(t *testing.T) {
		store := &faultyStore{Store: newStore()}
		orders := NewOrderService(store, nil)
		payments := NewPaymentService(orders, &fakeGateway{authority: "A0001"})
		order := placeOrder(t, store, 3)

		payment, err := payments.Initiate(ctx, Viewer{UserID: 3}, order.ID)

		require.NoError(t, err)
		assert.Equal(t, "A0001", payment.Authority)
		assert.Equal(t, "https://gateway.test/StartPay/A0001", payment.RedirectURL)
		found, err := orders.GetOrderByAuthority(ctx, "A0001")
		require.NoError(t, err)
		assert.Equal(t, order.ID, found.ID)
	})

	t.Run("other users cannot pay for the order", func(t *testing.T) {
		store := &faultyStore{Store: newStore()}
		payments := NewPaymentService(NewOrderService(store, nil), &fakeGateway{authority: "A0001"})
		order := placeOrder(t, store, 3)

		_, err := payments.Initiate(ctx, Viewer{UserID: 4}, order.ID)

		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("gateway refusal", func(t *testing.T) {
		store := &faultyStore{Store: newStore()}
		payments := NewPaymentService(NewOrderService(store, nil), &fakeGateway{requestErr: errInjected})
		order := placeOrder(t, store, 3)

		_, err := payments.Initiate(ctx, Viewer{UserID: 3}, order.ID)

		assert.ErrorIs(t, err, ErrPaymentNotInitiated)
	})

	t.Run("settled orders are not payable", func(t *testing.T) {
		store := &faultyStore{Store: newStore()}
		orders := NewOrderService(store, nil)
		payments := NewPaymentService(orders, &fakeGateway{authority: "A0001"})
		order := placeOrder(t, store, 3)
		_, err := orders.SetPaymentStatus(ctx, order.ID, entity.PaymentFailed)
		require.NoError(t, err)

		_, err = payments.Initiate(ctx, Viewer{UserID: 3}, order.ID)

		assert.ErrorIs(t, err, ErrOrderNotPayable)
	})
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		status         string
		settled        bool
		verifyErr      error
		expectedStatus entity.PaymentStatus
		expectedError  error
		expectVerify   bool
	}{
		{name: "settled", status: GatewayStatusOK, settled: true, expectedStatus: entity.PaymentCompleted, expectVerify: true},
		{name: "gateway says not settled", status: GatewayStatusOK, settled: false, expectedStatus: entity.PaymentFailed, expectVerify: true},
		{name: "buyer cancelled", status: GatewayStatusFailed, expectedStatus: entity.PaymentFailed},
		{name: "gateway down", status: GatewayStatusOK, verifyErr: errInjected, expectedStatus: entity.PaymentPending, expectedError: ErrGatewayUnavailable, expectVerify: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			store := &faultyStore{Store: newStore()}
			orders := NewOrderService(store, nil)
			gateway := &fakeGateway{authority: "A0001", settled: tt.settled, verifyErr: tt.verifyErr}
			payments := NewPaymentService(orders, gateway)
			order := placeOrder(t, store, 3)
			_, err := payments.Initiate(ctx, Viewer{UserID: 3}, order.ID)
			require.NoError(t, err)

			// Act
			updated, err := payments.Verify(ctx, "A0001", tt.status)

			// Assert
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedStatus, updated.PaymentStatus)
			}
			stored, err := orders.GetOrder(ctx, Viewer{All: true}, order.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, stored.PaymentStatus)
			assert.Equal(t, tt.expectVerify, len(gateway.verified) == 1)
		})
	}

	t.Run("unknown authority", func(t *testing.T) {
		payments := NewPaymentService(NewOrderService(newStore(), nil), &fakeGateway{})
		_, err := payments.Verify(ctx, "nope", GatewayStatusOK)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("replayed callback is rejected", func(t *testing.T) {
		store := &faultyStore{Store: newStore()}
		payments := NewPaymentService(NewOrderService(store, nil), &fakeGateway{authority: "A0001", settled: true})
		order := placeOrder(t, store, 3)
		_, err := payments.Initiate(ctx, Viewer{UserID: 3}, order.ID)
		require.NoError(t, err)
		_, err = payments.Verify(ctx, "A0001", GatewayStatusOK)
		require.NoError(t, err)

		_, err = payments.Verify(ctx, "A0001", GatewayStatusOK)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}
