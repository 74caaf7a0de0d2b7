package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enqueueForm struct {
	Domains  []string `validate:"required,min=1,dive,scan_domain"`
	Priority int      `validate:"min=0,max=100"`
}

type egressForm struct {
	Region  string `validate:"required,region_code"`
	Carrier string `validate:"required,carrier_class"`
}

func TestScanDomainValidation(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(enqueueForm{
		Domains:  []string{"example.com", "sub.example.co.uk", "a11y-audit.io"},
		Priority: 50,
	}))

	for _, bad := range []string{"", "not a domain", "http://example.com", "example", "-bad.com"} {
		err := v.Validate(enqueueForm{Domains: []string{bad}, Priority: 50})
		assert.Error(t, err, "domain %q should fail", bad)
	}
}

func TestPriorityBounds(t *testing.T) {
	v := New()

	err := v.Validate(enqueueForm{Domains: []string{"example.com"}, Priority: 101})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "priority", verrs[0].Field)
}

func TestRegionAndCarrierValidation(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(egressForm{Region: "us-east", Carrier: "mobile"}))
	require.NoError(t, v.Validate(egressForm{Region: "de", Carrier: "broadband"}))

	assert.Error(t, v.Validate(egressForm{Region: "US-EAST", Carrier: "mobile"}))
	assert.Error(t, v.Validate(egressForm{Region: "us-east", Carrier: "satellite"}))
}
