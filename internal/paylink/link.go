// Package paylink renders payment links according to the payme.sk Payment
// Link Standard v1.3. Banking apps parse the query keys verbatim, so the key
// set and value formatting here must not drift.
package paylink

import (
	"errors"
	"net/url"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the scheme+host every generated link points at.
const DefaultBaseURL = "https://payme.sk/"

// Params are the inputs of one payment link. Message and DueDate are
// optional; DueDate must already be formatted as YYYYMMDD.
type Params struct {
	IBAN         string
	Amount       decimal.Decimal
	Currency     string
	CreditorName string
	EndToEndID   string
	Message      string
	DueDate      string
}

// Encoder produces payment links. The zero value uses DefaultBaseURL.
type Encoder struct {
	BaseURL string
}

// Generate builds the canonical link for the given parameters. It is a pure
// function of its inputs: amount with exactly two decimals, IBAN stripped of
// whitespace, currency uppercased, values percent-encoded.
func (e Encoder) Generate(p Params) (string, error) {
	iban := stripWhitespace(p.IBAN)
	if iban == "" {
		return "", errors.New("paylink: iban is required")
	}
	if strings.TrimSpace(p.CreditorName) == "" {
		return "", errors.New("paylink: creditor name is required")
	}
	if strings.TrimSpace(p.EndToEndID) == "" {
		return "", errors.New("paylink: end-to-end id is required")
	}

	values := url.Values{}
	values.Set("V", "1")
	values.Set("IBAN", iban)
	values.Set("AM", p.Amount.StringFixed(2))
	values.Set("CC", strings.ToUpper(strings.TrimSpace(p.Currency)))
	values.Set("CN", p.CreditorName)
	values.Set("PI", p.EndToEndID)
	if p.Message != "" {
		values.Set("MSG", p.Message)
	}
	if p.DueDate != "" {
		values.Set("DT", p.DueDate)
	}

	base := e.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "?" + values.Encode(), nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
