// Package egress defines the egress identity entity and the rotation pool
// that hands identities out to scan dispatch.
package egress

import (
	"fmt"
	"net/url"

	"github.com/a11yscan/grid/pkg/domain/shared"
)

// CarrierClass classifies the network a proxy exit sits on.
type CarrierClass string

const (
	CarrierMobile    CarrierClass = "mobile"
	CarrierBroadband CarrierClass = "broadband"
)

// IsValid checks if the carrier class is a known value.
func (c CarrierClass) IsValid() bool {
	return c == CarrierMobile || c == CarrierBroadband
}

// Identity is a network exit point used to make outbound scans appear
// to originate from a different client. Immutable once added to the
// pool; the pool only appends or removes entries.
type Identity struct {
	Address string       `json:"address" yaml:"address"`
	Port    int          `json:"port" yaml:"port"`
	Region  string       `json:"region" yaml:"region"`
	Carrier CarrierClass `json:"carrier" yaml:"carrier"`

	// Optional upstream proxy credentials.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"password,omitempty"`
}

// NewIdentity creates a validated egress identity.
func NewIdentity(address string, port int, region string, carrier CarrierClass) (Identity, error) {
	id := Identity{
		Address: address,
		Port:    port,
		Region:  region,
		Carrier: carrier,
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks the identity fields.
func (i Identity) Validate() error {
	if i.Address == "" {
		return shared.NewDomainError("VALIDATION", "address is required", shared.ErrValidation)
	}
	if i.Port <= 0 || i.Port > 65535 {
		return shared.NewDomainError("VALIDATION", "port must be in 1-65535", shared.ErrValidation)
	}
	if i.Region == "" {
		return shared.NewDomainError("VALIDATION", "region is required", shared.ErrValidation)
	}
	if !i.Carrier.IsValid() {
		return shared.NewDomainError("VALIDATION", "carrier must be mobile or broadband", shared.ErrValidation)
	}
	return nil
}

// ProxyURL renders the identity as an HTTP proxy URL for the dispatch
// layer. Credentials are included when present.
func (i Identity) ProxyURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", i.Address, i.Port),
	}
	if i.Username != "" {
		u.User = url.UserPassword(i.Username, i.Password)
	}
	return u.String()
}
