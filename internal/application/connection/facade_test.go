package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/application/authwindow"
	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
)

// MockBackendClient is a mock implementation of BackendClient
type MockBackendClient struct {
	mock.Mock
}

func (m *MockBackendClient) Call(ctx context.Context, req connector.WireRequest) (*connector.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Result), args.Error(1)
}

// stubRunner returns a fixed outcome and records the attempts it was given
type stubRunner struct {
	mu       sync.Mutex
	outcome  authwindow.Outcome
	attempts []authwindow.Attempt
}

func (r *stubRunner) Run(_ context.Context, a authwindow.Attempt) authwindow.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return r.outcome
}

func action(name connector.Action) any {
	return mock.MatchedBy(func(req connector.WireRequest) bool { return req.Action == string(name) })
}

func activeResult(mp integration.Marketplace) *connector.Result {
	return &connector.Result{
		Success: true,
		Data:    &connector.ResultData{Marketplace: mp, Status: integration.StatusActive},
	}
}

func TestFacade_Authenticate_APIKeyOpensNoWindow(t *testing.T) {
	backend := new(MockBackendClient)
	runner := &stubRunner{}
	backend.On("Call", mock.Anything, connector.WireRequest{
		Action:      "authenticate",
		Marketplace: "taobao",
		Credentials: map[string]string{"app_key": "k", "app_secret": "s"},
		ChannelID:   "ch-1",
	}).Return(activeResult("taobao"), nil).Once()

	f := NewFacade(backend, runner)
	res, err := f.Authenticate(context.Background(), "taobao", map[string]string{"app_key": "k", "app_secret": "s"}, "ch-1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, integration.StatusActive, res.Data.Status)
	assert.Empty(t, runner.attempts)
	backend.AssertExpectations(t)
}

func TestFacade_Authenticate_OAuthExchangesReceivedCode(t *testing.T) {
	backend := new(MockBackendClient)
	runner := &stubRunner{outcome: authwindow.Outcome{Phase: authwindow.PhaseCodeReceived, Code: "abc", State: "s1"}}
	backend.On("Call", mock.Anything, action(connector.ActionAuthenticate)).
		Return(&connector.Result{Success: true, AuthURL: "https://shop.example.com/authorize?state=s1", State: "s1"}, nil).Once()
	backend.On("Call", mock.Anything, connector.WireRequest{
		Action:      "process_callback",
		Marketplace: "shopify",
		Code:        "abc",
		State:       "s1",
		ChannelID:   "ch-1",
	}).Return(activeResult("shopify"), nil).Once()

	f := NewFacade(backend, runner)
	res, err := f.Authenticate(context.Background(), "shopify", nil, "ch-1")

	require.NoError(t, err)
	assert.Equal(t, integration.StatusActive, res.Data.Status)
	require.Len(t, runner.attempts, 1)
	assert.Equal(t, authwindow.Attempt{
		Marketplace: "shopify",
		AuthURL:     "https://shop.example.com/authorize?state=s1",
		State:       "s1",
	}, runner.attempts[0])
	backend.AssertExpectations(t)
}

func TestFacade_Authenticate_WindowFailureSkipsExchange(t *testing.T) {
	tests := []struct {
		name     string
		outcome  authwindow.Outcome
		wantKind integration.ErrorKind
	}{
		{
			name: "user closed window",
			outcome: authwindow.Outcome{
				Phase: authwindow.PhaseUserCancelled,
				Err:   integration.NewConnectError(integration.KindUserCancelled, "shopify", "window closed", nil),
			},
			wantKind: integration.KindUserCancelled,
		},
		{
			name: "timed out",
			outcome: authwindow.Outcome{
				Phase: authwindow.PhaseTimedOut,
				Err:   integration.NewConnectError(integration.KindTimedOut, "shopify", "no redirect", nil),
			},
			wantKind: integration.KindTimedOut,
		},
		{
			name: "popup blocked",
			outcome: authwindow.Outcome{
				Phase: authwindow.PhaseErrorReceived,
				Err:   integration.NewConnectError(integration.KindPopupBlocked, "shopify", "popup blocked", nil),
			},
			wantKind: integration.KindPopupBlocked,
		},
		{
			name:     "provider error",
			outcome:  authwindow.Outcome{Phase: authwindow.PhaseErrorReceived, Err: integration.Rejected("shopify", "invalid_scope", "")},
			wantKind: integration.KindProviderRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(MockBackendClient)
			backend.On("Call", mock.Anything, action(connector.ActionAuthenticate)).
				Return(&connector.Result{Success: true, AuthURL: "https://shop.example.com/authorize", State: "s1"}, nil).Once()

			f := NewFacade(backend, &stubRunner{outcome: tt.outcome})
			res, err := f.Authenticate(context.Background(), "shopify", nil, "")

			assert.Nil(t, res)
			assert.Equal(t, tt.wantKind, integration.KindOf(err))
			backend.AssertNumberOfCalls(t, "Call", 1)
		})
	}
}

func TestFacade_Authenticate_BackendFailure(t *testing.T) {
	backend := new(MockBackendClient)
	runner := &stubRunner{}
	backend.On("Call", mock.Anything, action(connector.ActionAuthenticate)).
		Return(nil, integration.NewConnectError(integration.KindInvalidRequest, "etsy", "marketplace not configured", nil)).Once()

	f := NewFacade(backend, runner)
	_, err := f.Authenticate(context.Background(), "etsy", nil, "")

	assert.ErrorIs(t, err, integration.ErrInvalidRequest)
	assert.Empty(t, runner.attempts)
}

func TestFacade_NamedOperations(t *testing.T) {
	tests := []struct {
		name string
		want connector.WireRequest
		call func(f *Facade) (*connector.Result, error)
	}{
		{
			name: "refresh",
			want: connector.WireRequest{Action: "refresh", Marketplace: "shopify"},
			call: func(f *Facade) (*connector.Result, error) { return f.RefreshToken(context.Background(), "shopify") },
		},
		{
			name: "validate",
			want: connector.WireRequest{Action: "validate", Marketplace: "shopify"},
			call: func(f *Facade) (*connector.Result, error) { return f.ValidateCredentials(context.Background(), "shopify") },
		},
		{
			name: "disconnect",
			want: connector.WireRequest{Action: "disconnect", Marketplace: "shopify", ChannelID: "ch-1"},
			call: func(f *Facade) (*connector.Result, error) { return f.Disconnect(context.Background(), "shopify", "ch-1") },
		},
		{
			name: "status",
			want: connector.WireRequest{Action: "status", Marketplace: "shopify"},
			call: func(f *Facade) (*connector.Result, error) { return f.GetConnectionStatus(context.Background(), "shopify") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(MockBackendClient)
			backend.On("Call", mock.Anything, tt.want).Return(activeResult("shopify"), nil).Once()
			runner := &stubRunner{}

			res, err := tt.call(NewFacade(backend, runner))

			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Empty(t, runner.attempts)
			backend.AssertExpectations(t)
		})
	}
}

func TestFacade_BackendCallsAreTimeoutBound(t *testing.T) {
	backend := new(MockBackendClient)
	backend.On("Call", mock.Anything, action(connector.ActionStatus)).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	f := NewFacade(backend, &stubRunner{}, WithCallTimeout(10*time.Millisecond))
	_, err := f.GetConnectionStatus(context.Background(), "shopify")

	assert.ErrorIs(t, err, integration.ErrNetworkFailure)
}
