package model

import (
	"fmt"
	"strings"
	"time"
)

// Address is the delivery address as resolved from the postal code,
// with fields the user filled in when the lookup came back incomplete.
type Address struct {
	Street   string `json:"street,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
}

// Empty reports whether nothing at all was resolved or entered.
func (a Address) Empty() bool {
	return a.Street == "" && a.District == "" && a.City == "" && a.Region == ""
}

// Order is the record built up turn by turn during the intake dialogue.
// Validated fields (CPF, Phone, CEP) are only ever written after passing
// their validators. OrderID and CreatedAt are set exactly once, when the
// user confirms the full address.
type Order struct {
	Medicine     string     `json:"medicine,omitempty"`
	PriceCents   int64      `json:"price_cents,omitempty"`
	CustomerName string     `json:"customer_name,omitempty"`
	CPF          string     `json:"cpf,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	CEP          string     `json:"cep,omitempty"`
	Address      Address    `json:"address,omitempty"`
	HouseNumber  string     `json:"house_number,omitempty"`
	OrderID      string     `json:"order_id,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// Completed reports whether the order went through final confirmation.
func (o *Order) Completed() bool {
	return o.OrderID != "" && o.CreatedAt != nil
}

// ResetDelivery clears everything tied to the postal-code step so the
// user can restart it. Identity and medicine fields are kept.
func (o *Order) ResetDelivery() {
	o.CEP = ""
	o.Address = Address{}
	o.HouseNumber = ""
}

// FormatPrice renders cents as a Brazilian price string, e.g. "R$ 12,90".
func FormatPrice(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

// FormatAddressLines renders the confirmed address block shown to the user.
func (o *Order) FormatAddressLines() string {
	var sb strings.Builder
	sb.WriteString(o.Address.Street)
	if o.HouseNumber != "" {
		sb.WriteString(", ")
		sb.WriteString(o.HouseNumber)
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s - %s/%s", o.Address.District, o.Address.City, o.Address.Region))
	return sb.String()
}
