package connector

import (
	"time"

	"github.com/erp/connector/internal/domain/integration"
)

// Result is the success reply of every connector operation
type Result struct {
	Success bool                 `json:"success"`
	AuthURL string               `json:"auth_url,omitempty"`
	State   string               `json:"state,omitempty"`
	Data    *ResultData          `json:"data,omitempty"`
	Profile *integration.Profile `json:"profile,omitempty"`
	Valid   *bool                `json:"valid,omitempty"`
}

// ResultData describes the integration after the operation
type ResultData struct {
	Marketplace integration.Marketplace `json:"marketplace"`
	Status      integration.Status      `json:"status"`
	AuthType    integration.AuthType    `json:"auth_type,omitempty"`
	ChannelID   string                  `json:"channel_id,omitempty"`
	Profile     *integration.Profile    `json:"profile,omitempty"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
}

// IsValid reports the validate/status verdict, false when absent
func (r *Result) IsValid() bool {
	return r != nil && r.Valid != nil && *r.Valid
}

func newResult(i *integration.Integration, profile *integration.Profile) *Result {
	return &Result{
		Success: true,
		Data:    dataOf(i, profile),
		Profile: profile,
	}
}

func dataOf(i *integration.Integration, profile *integration.Profile) *ResultData {
	return &ResultData{
		Marketplace: i.Marketplace,
		Status:      i.Status,
		AuthType:    i.AuthType,
		ChannelID:   i.ChannelID,
		Profile:     profile,
		ExpiresAt:   i.Credentials.ExpiresAt,
		LastError:   i.LastError,
	}
}

func boolPtr(b bool) *bool { return &b }
