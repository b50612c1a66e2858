package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mizpos/terminal-link-go/internal/model"
)

// Mock repositories for the failure paths the in-memory implementations
// cannot produce.

type mockPairingRepo struct {
	mock.Mock
}

func (m *mockPairingRepo) Create(ctx context.Context, params model.RegisterPairingParams, expiresAt time.Time) (*model.PairingRecord, error) {
	args := m.Called(ctx, params, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairingRecord), args.Error(1)
}

func (m *mockPairingRepo) FindByPIN(ctx context.Context, pin string) (*model.PairingRecord, error) {
	args := m.Called(ctx, pin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairingRecord), args.Error(1)
}

func (m *mockPairingRepo) Delete(ctx context.Context, pin string) error {
	args := m.Called(ctx, pin)
	return args.Error(0)
}

func (m *mockPairingRepo) MarkClaimed(ctx context.Context, pin, terminalSerial string, terminalName *string) (*model.PairingRecord, error) {
	args := m.Called(ctx, pin, terminalSerial, terminalName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairingRecord), args.Error(1)
}

func (m *mockPairingRepo) Heartbeat(ctx context.Context, pin, terminalSerial string) (bool, error) {
	args := m.Called(ctx, pin, terminalSerial)
	return args.Bool(0), args.Error(1)
}

func (m *mockPairingRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPairingRepo) DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockPaymentRequestRepo struct {
	mock.Mock
}

func (m *mockPaymentRequestRepo) Create(ctx context.Context, requestID string, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error) {
	args := m.Called(ctx, requestID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRequest), args.Error(1)
}

func (m *mockPaymentRequestRepo) FindByID(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRequest), args.Error(1)
}

func (m *mockPaymentRequestRepo) FindNextPending(ctx context.Context, pin string) (*model.PaymentRequest, error) {
	args := m.Called(ctx, pin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRequest), args.Error(1)
}

func (m *mockPaymentRequestRepo) UpdateResult(ctx context.Context, requestID string, from model.PaymentStatus, params model.TerminalResultParams) (*model.PaymentRequest, error) {
	args := m.Called(ctx, requestID, from, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRequest), args.Error(1)
}

func (m *mockPaymentRequestRepo) MarkCancelled(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRequest), args.Error(1)
}

func (m *mockPaymentRequestRepo) CancelAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPaymentRequestRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
