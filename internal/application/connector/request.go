package connector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/go-playground/validator/v10"
)

// Action is the wire name of a connector operation
type Action string

const (
	ActionAuthenticate    Action = "authenticate"
	ActionGetAuthURL      Action = "get_auth_url"
	ActionProcessCallback Action = "process_callback"
	ActionRefresh         Action = "refresh"
	ActionValidate        Action = "validate"
	ActionDisconnect      Action = "disconnect"
	ActionStatus          Action = "status"
)

// Request is one of the request variants below. The set is closed.
type Request interface {
	Action() Action
	Target() integration.Marketplace
	isRequest()
}

// GetAuthURLRequest starts an OAuth attempt
type GetAuthURLRequest struct {
	Marketplace integration.Marketplace
	// RedirectURI overrides the configured callback; it must be absolute
	RedirectURI string
	ChannelID   string
}

// ConnectAPIKeyRequest validates and stores static key material
type ConnectAPIKeyRequest struct {
	Marketplace integration.Marketplace
	Credentials map[string]string
	ChannelID   string
}

// ExchangeCodeRequest redeems the code delivered to the redirect page
type ExchangeCodeRequest struct {
	Marketplace integration.Marketplace
	Code        string
	State       string
	RedirectURI string
	ChannelID   string
}

// RefreshRequest trades the stored refresh token for a new access token
type RefreshRequest struct {
	Marketplace integration.Marketplace
}

// ValidateRequest checks that the stored credentials still authenticate
type ValidateRequest struct {
	Marketplace integration.Marketplace
}

// DisconnectRequest revokes and wipes the stored credentials
type DisconnectRequest struct {
	Marketplace integration.Marketplace
	ChannelID   string
}

// StatusRequest reads the connection status without writing anything
type StatusRequest struct {
	Marketplace integration.Marketplace
}

func (GetAuthURLRequest) Action() Action    { return ActionGetAuthURL }
func (ConnectAPIKeyRequest) Action() Action { return ActionAuthenticate }
func (ExchangeCodeRequest) Action() Action  { return ActionProcessCallback }
func (RefreshRequest) Action() Action       { return ActionRefresh }
func (ValidateRequest) Action() Action      { return ActionValidate }
func (DisconnectRequest) Action() Action    { return ActionDisconnect }
func (StatusRequest) Action() Action        { return ActionStatus }

func (r GetAuthURLRequest) Target() integration.Marketplace    { return r.Marketplace }
func (r ConnectAPIKeyRequest) Target() integration.Marketplace { return r.Marketplace }
func (r ExchangeCodeRequest) Target() integration.Marketplace  { return r.Marketplace }
func (r RefreshRequest) Target() integration.Marketplace       { return r.Marketplace }
func (r ValidateRequest) Target() integration.Marketplace      { return r.Marketplace }
func (r DisconnectRequest) Target() integration.Marketplace    { return r.Marketplace }
func (r StatusRequest) Target() integration.Marketplace        { return r.Marketplace }

func (GetAuthURLRequest) isRequest()    {}
func (ConnectAPIKeyRequest) isRequest() {}
func (ExchangeCodeRequest) isRequest()  {}
func (RefreshRequest) isRequest()       {}
func (ValidateRequest) isRequest()      {}
func (DisconnectRequest) isRequest()    {}
func (StatusRequest) isRequest()        {}

// WireRequest is the single dispatch document accepted over HTTP
type WireRequest struct {
	Action      string            `json:"action" validate:"required,oneof=authenticate get_auth_url process_callback refresh validate disconnect status"`
	Marketplace string            `json:"marketplace" validate:"required,max=32"`
	Credentials map[string]string `json:"credentials,omitempty" validate:"omitempty,max=16,dive,keys,min=1,max=64,endkeys,max=4096"`
	Code        string            `json:"code,omitempty" validate:"omitempty,max=2048"`
	State       string            `json:"state,omitempty" validate:"omitempty,max=256"`
	RedirectURI string            `json:"redirect_uri,omitempty" validate:"omitempty,url,max=2048"`
	ChannelID   string            `json:"channel_id,omitempty" validate:"omitempty,max=64"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeRequest maps a wire document to its request variant. The merged
// authenticate action resolves by what it carries and by the marketplace's
// auth type: a code means exchange, api key marketplaces connect directly,
// and oauth marketplaces start a new attempt.
func DecodeRequest(wire WireRequest, providers integration.ProviderRegistry) (Request, error) {
	wire.Action = strings.ToLower(strings.TrimSpace(wire.Action))
	if err := validate.Struct(wire); err != nil {
		return nil, invalidRequest("", describeValidation(err))
	}

	mp, err := integration.ParseMarketplace(wire.Marketplace)
	if err != nil {
		return nil, integration.Classify(integration.Marketplace(wire.Marketplace), err)
	}

	switch Action(wire.Action) {
	case ActionGetAuthURL:
		return GetAuthURLRequest{Marketplace: mp, RedirectURI: wire.RedirectURI, ChannelID: wire.ChannelID}, nil
	case ActionProcessCallback:
		return exchangeRequest(mp, wire)
	case ActionRefresh:
		return RefreshRequest{Marketplace: mp}, nil
	case ActionValidate:
		return ValidateRequest{Marketplace: mp}, nil
	case ActionDisconnect:
		return DisconnectRequest{Marketplace: mp, ChannelID: wire.ChannelID}, nil
	case ActionStatus:
		return StatusRequest{Marketplace: mp}, nil
	}

	// authenticate
	if wire.Code != "" {
		return exchangeRequest(mp, wire)
	}
	provider, err := providers.Get(mp)
	if err != nil {
		return nil, integration.Classify(mp, err)
	}
	if provider.AuthType() == integration.AuthTypeAPIKey {
		if len(wire.Credentials) == 0 {
			return nil, invalidRequest(mp, "credentials are required for api key marketplaces")
		}
		return ConnectAPIKeyRequest{Marketplace: mp, Credentials: wire.Credentials, ChannelID: wire.ChannelID}, nil
	}
	return GetAuthURLRequest{Marketplace: mp, RedirectURI: wire.RedirectURI, ChannelID: wire.ChannelID}, nil
}

func exchangeRequest(mp integration.Marketplace, wire WireRequest) (Request, error) {
	if wire.Code == "" || wire.State == "" {
		return nil, invalidRequest(mp, "code and state are required")
	}
	return ExchangeCodeRequest{
		Marketplace: mp,
		Code:        wire.Code,
		State:       wire.State,
		RedirectURI: wire.RedirectURI,
		ChannelID:   wire.ChannelID,
	}, nil
}

func invalidRequest(mp integration.Marketplace, message string) *integration.ConnectError {
	return integration.NewConnectError(integration.KindInvalidRequest, mp, message, nil)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
