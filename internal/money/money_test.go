package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsUpToTwoFractionDigits(t *testing.T) {
	cases := map[string]Cents{
		"300":    30000,
		"300.5":  30050,
		"300.50": 30050,
		"0.01":   1,
		"0":      0,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseRejectsSubCentPrecision(t *testing.T) {
	_, err := Parse("10.005")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSplitPutsRemainderOnLastPart(t *testing.T) {
	parts, err := Split(MustParse("100.00"), 3)
	require.NoError(t, err)
	assert.Equal(t, []Cents{3333, 3333, 3334}, parts)
	assert.Equal(t, MustParse("100.00"), Sum(parts...))
}

func TestSplitConservesTotalForManyDivisors(t *testing.T) {
	totals := []Cents{0, 1, 99, 10001, 123457, 99999999}
	for _, total := range totals {
		for n := 1; n <= 12; n++ {
			parts, err := Split(total, n)
			require.NoError(t, err)
			require.Len(t, parts, n)
			require.Equal(t, total, Sum(parts...), "total=%s n=%d", total, n)
			for _, p := range parts[:n-1] {
				require.Equal(t, parts[0], p)
			}
		}
	}
}

func TestSplitRejectsZeroParts(t *testing.T) {
	_, err := Split(100, 0)
	require.Error(t, err)
}

func TestJSONUsesTwoFractionDigits(t *testing.T) {
	payload, err := json.Marshal(struct {
		Amount Cents `json:"amount"`
	}{Amount: MustParse("150")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":150.00}`, string(payload))
	assert.Contains(t, string(payload), "150.00")

	var decoded struct {
		Amount Cents `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.3"}`), &decoded))
	assert.Equal(t, Cents(1230), decoded.Amount)

	require.Error(t, json.Unmarshal([]byte(`{"amount":1.999}`), &decoded))
}

func TestScanHandlesDriverRepresentations(t *testing.T) {
	var c Cents
	require.NoError(t, c.Scan("301.00"))
	assert.Equal(t, Cents(30100), c)

	require.NoError(t, c.Scan([]byte("1.5")))
	assert.Equal(t, Cents(150), c)

	require.NoError(t, c.Scan(float64(0.1)+float64(0.2)))
	assert.Equal(t, Cents(30), c)

	require.NoError(t, c.Scan(int64(7)))
	assert.Equal(t, Cents(700), c)
}

func TestParseRejectsAmountsBeyondColumnRange(t *testing.T) {
	for _, raw := range []string{"46116860184273879.04", "100000000000000000000", "10000000000.00", "-10000000000"} {
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrOutOfRange, raw)
		require.ErrorIs(t, err, ErrInvalidAmount, raw)
	}

	got, err := Parse("9999999999.99")
	require.NoError(t, err)
	assert.Equal(t, MaxAmount, got)

	var decoded struct {
		Amount Cents `json:"amount"`
	}
	require.ErrorIs(t, json.Unmarshal([]byte(`{"amount":100000000000000000000}`), &decoded), ErrOutOfRange)
}

func TestMulQtyAndAddStayInRange(t *testing.T) {
	line, err := MustParse("150.00").MulQty(3)
	require.NoError(t, err)
	assert.Equal(t, MustParse("450.00"), line)

	_, err = MaxAmount.MulQty(4)
	require.ErrorIs(t, err, ErrOutOfRange)

	total, err := Add(MaxAmount-1, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxAmount, total)

	_, err = Add(MaxAmount, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestScanRejectsOutOfRangeInteger(t *testing.T) {
	var c Cents
	require.ErrorIs(t, c.Scan(int64(92233720368547758)), ErrOutOfRange)
}
