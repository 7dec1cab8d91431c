package skiptrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressKey(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want string
	}{
		{
			name: "collapses whitespace and lowercases",
			addr: Address{Street: "  123  Main   St ", City: "Phoenix", State: "az", Zip: "85001"},
			want: "123 main st phoenix az 85001",
		},
		{
			name: "same key regardless of casing",
			addr: Address{Street: "123 MAIN ST", City: "PHOENIX", State: "AZ", Zip: "85001"},
			want: "123 main st phoenix az 85001",
		},
		{
			name: "empty address yields empty key",
			addr: Address{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.addr.Key())
		})
	}
}

func TestAddressHasLocality(t *testing.T) {
	assert.True(t, Address{Street: "1 Elm", Zip: "85001"}.HasLocality())
	assert.True(t, Address{Street: "1 Elm", City: "Phoenix", State: "AZ"}.HasLocality())
	assert.False(t, Address{Street: "1 Elm", City: "Phoenix"}.HasLocality())
	assert.False(t, Address{Street: "1 Elm"}.HasLocality())
}

func TestPhoneNormalizedNumber(t *testing.T) {
	assert.Equal(t, "6025550100", Phone{Number: "(602) 555-0100"}.NormalizedNumber())
	assert.Equal(t, "6025550100", Phone{Number: "602.555.0100"}.NormalizedNumber())
	assert.Equal(t, "", Phone{Number: "n/a"}.NormalizedNumber())
}

func TestProviderResponseTally(t *testing.T) {
	resp := &ProviderResponse{Results: []PropertyResult{
		{Success: true},
		{Success: false},
		{Success: true},
	}}
	resp.Tally()

	assert.Equal(t, 3, resp.TotalResults)
	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	assert.True(t, resp.HasSuccess())
}

func TestProviderResponseHasSuccess(t *testing.T) {
	var nilResp *ProviderResponse
	assert.False(t, nilResp.HasSuccess())
	assert.False(t, (&ProviderResponse{}).HasSuccess())
}

func TestCreditBalanceTotal(t *testing.T) {
	assert.Equal(t, 0, CreditBalance{}.Total())
	assert.Equal(t, 7, CreditBalance{Free: 3, Paid: 4}.Total())
}
