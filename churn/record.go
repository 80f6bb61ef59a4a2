package churn

import (
	"github.com/ezoic/churn/dataset"
)

// Record is one customer as accepted by the prediction API. The two plan
// fields arrive already encoded as 0/1. State is ignored unless the bundle
// was prepared with State as a feature, in which case it is required.
type Record struct {
	State                *string `json:"state,omitempty"`
	AccountLength        float64 `json:"account_length"`
	InternationalPlan    float64 `json:"international_plan"`
	VoiceMailPlan        float64 `json:"voice_mail_plan"`
	NumberVmailMessages  float64 `json:"number_vmail_messages"`
	TotalDayMinutes      float64 `json:"total_day_minutes"`
	TotalDayCalls        float64 `json:"total_day_calls"`
	TotalDayCharge       float64 `json:"total_day_charge"`
	TotalEveMinutes      float64 `json:"total_eve_minutes"`
	TotalEveCalls        float64 `json:"total_eve_calls"`
	TotalNightMinutes    float64 `json:"total_night_minutes"`
	TotalNightCalls      float64 `json:"total_night_calls"`
	TotalIntlMinutes     float64 `json:"total_intl_minutes"`
	TotalIntlCalls       float64 `json:"total_intl_calls"`
	CustomerServiceCalls float64 `json:"customer_service_calls"`
}

// Fields returns the numeric fields keyed by their wire name.
func (r Record) Fields() map[string]float64 {
	return map[string]float64{
		"account_length":         r.AccountLength,
		"international_plan":     r.InternationalPlan,
		"voice_mail_plan":        r.VoiceMailPlan,
		"number_vmail_messages":  r.NumberVmailMessages,
		"total_day_minutes":      r.TotalDayMinutes,
		"total_day_calls":        r.TotalDayCalls,
		"total_day_charge":       r.TotalDayCharge,
		"total_eve_minutes":      r.TotalEveMinutes,
		"total_eve_calls":        r.TotalEveCalls,
		"total_night_minutes":    r.TotalNightMinutes,
		"total_night_calls":      r.TotalNightCalls,
		"total_intl_minutes":     r.TotalIntlMinutes,
		"total_intl_calls":       r.TotalIntlCalls,
		"customer_service_calls": r.CustomerServiceCalls,
	}
}

// InferenceFields returns the wire names of the numeric and binary columns of
// schema, in column order. These are the required fields of a Record.
func InferenceFields(schema dataset.Schema) []string {
	var out []string
	for _, c := range schema.Columns {
		if c.Kind != dataset.Frequency {
			out = append(out, c.Field)
		}
	}
	return out
}
