package dto

import (
	"encoding/json"
	"strings"
)

// FlexString tolerates gateway fields that arrive as JSON strings or
// numbers ("2500", 2500, 2500.00 are all seen in the wild).
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// MpesaConfirmation is the C2B confirmation body posted by the payment
// gateway. BillRefNumber carries the Telegram id the payer typed at the
// till.
type MpesaConfirmation struct {
	TransactionType   string     `json:"TransactionType"`
	TransID           string     `json:"TransID"`
	TransTime         FlexString `json:"TransTime"`
	TransAmount       FlexString `json:"TransAmount"`
	BusinessShortCode FlexString `json:"BusinessShortCode"`
	BillRefNumber     string     `json:"BillRefNumber"`
	InvoiceNumber     string     `json:"InvoiceNumber"`
	MSISDN            FlexString `json:"MSISDN"`
	FirstName         string     `json:"FirstName"`
	MiddleName        string     `json:"MiddleName"`
	LastName          string     `json:"LastName"`
}

// MpesaAck is the acknowledgement shape the gateway expects. Anything
// other than a fast ResultCode 0 triggers a redelivery.
type MpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
