package domain

import "testing"

// FuzzParseDatasetID verifies the trust-boundary parser never panics and
// that accepted values round-trip unchanged.
func FuzzParseDatasetID(f *testing.F) {
	f.Add("")
	f.Add("ds-0011223344556677")
	f.Add("ds-ZZ11223344556677")
	f.Add("'; DROP TABLE datasets;--")
	f.Add(string([]byte{0xff, 0xfe, 0x00}))
	f.Add("ds-0011223344556677\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseDatasetID(input)
		if err != nil {
			return
		}
		roundTrip, err2 := ParseDatasetID(id.String())
		if err2 != nil {
			t.Errorf("accepted ID failed round-trip: %v", err2)
		}
		if roundTrip != id {
			t.Error("round-trip changed ID value")
		}
	})
}
