package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressSnapshotRoundTrip(t *testing.T) {
	line2 := "Apt 4"
	in := AddressSnapshot{
		AddressID:  "a1",
		Recipient:  "Sam",
		Line1:      "1 Main St",
		Line2:      &line2,
		City:       "Pune",
		Region:     "MH",
		PostalCode: "411001",
		Country:    "IN",
	}

	value, err := in.Value()
	require.NoError(t, err)

	var out AddressSnapshot
	require.NoError(t, out.Scan([]byte(value.(string))))
	require.Equal(t, in, out)
}

func TestAddressSnapshotScanNil(t *testing.T) {
	out := AddressSnapshot{City: "stale"}
	require.NoError(t, out.Scan(nil))
	require.Equal(t, AddressSnapshot{}, out)

	require.Error(t, out.Scan(42))
}
