package grt

import (
	"math/big"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad test fixture %q", s)
	return n
}

func TestWeiToDecimal(t *testing.T) {
	tests := []struct {
		name string
		wei  string
		want string
	}{
		{name: "zero", wei: "0", want: "0"},
		{name: "one wei", wei: "1", want: "0.000000000000000001"},
		{name: "five wei is zero padded", wei: "5", want: "0.000000000000000005"},
		{name: "one GRT", wei: "1000000000000000000", want: "1"},
		{name: "one and a half GRT", wei: "1500000000000000000", want: "1.5"},
		{name: "beyond int64", wei: "10000000000000000000000000000000", want: "10000000000000"},
		{name: "max uint256", wei: "115792089237316195423570985008687907853269984665640564039457584007913129639935", want: "115792089237316195423570985008687907853269984665640564039457.584007913129639935"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WeiToDecimal(mustBig(t, tt.wei))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)))
		})
	}
}

func TestWeiToDecimalDoesNotAliasInput(t *testing.T) {
	wei := big.NewInt(42)
	got, err := WeiToDecimal(wei)
	require.NoError(t, err)

	wei.SetInt64(7)
	assert.Equal(t, "0.000000000000000042", got.String())
}

func TestWeiToDecimalRejectsInvalid(t *testing.T) {
	_, err := WeiToDecimal(big.NewInt(-1))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = WeiToDecimal(nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWeiToDecimalRoundTrip(t *testing.T) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	rng := rand.New(rand.NewSource(1))

	samples := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(999999999999999999),
		new(big.Int).Set(limit),
		new(big.Int).Sub(limit, big.NewInt(1)),
	}
	for i := 0; i < 500; i++ {
		samples = append(samples, new(big.Int).Rand(rng, limit))
	}

	for _, n := range samples {
		d, err := WeiToDecimal(n)
		require.NoError(t, err)

		// Re-parse the rendered string so nothing but the text is carried over.
		reparsed := decimal.RequireFromString(d.String())
		back := reparsed.Shift(18)
		require.True(t, back.IsInteger(), "scaled value %s is not an integer", back)
		require.Zero(t, n.Cmp(back.BigInt()), "round trip of %s produced %s", n, back.BigInt())

		wei, err := DecimalToWei(reparsed)
		require.NoError(t, err)
		require.Zero(t, n.Cmp(wei))
	}
}

func TestWeiToDecimalConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := WeiToDecimal(big.NewInt(int64(i)))
			assert.NoError(t, err)
			assert.True(t, d.Shift(18).Equal(decimal.NewFromInt(int64(i))))
		}(i)
	}
	wg.Wait()
}

func TestParseWei(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "zero", input: "0", want: "0"},
		{name: "large", input: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{name: "surrounding whitespace", input: "  42 ", want: "42"},
		{name: "negative", input: "-1", wantErr: true},
		{name: "explicit plus", input: "+1", wantErr: true},
		{name: "fraction", input: "1.5", wantErr: true},
		{name: "exponent", input: "1e18", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "underscores", input: "1_000", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWei(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestWeiStringToDecimal(t *testing.T) {
	got, err := WeiStringToDecimal("2500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "2.5", got.String())

	_, err = WeiStringToDecimal("2.5")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = WeiStringToDecimal("-2")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDecimalToWei(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "zero", input: "0", want: "0"},
		{name: "fractional GRT", input: "1.5", want: "1500000000000000000"},
		{name: "exponent notation", input: "1.5e3", want: "1500000000000000000000"},
		{name: "smallest unit", input: "0.000000000000000001", want: "1"},
		{name: "half rounds to even down", input: "0.0000000000000000005", want: "0"},
		{name: "half rounds to even up", input: "0.0000000000000000015", want: "2"},
		{name: "noise below a wei", input: "1e-22", want: "0"},
		{name: "many digits", input: "123456789.123456789123456789", want: "123456789123456789123456789"},
		{name: "largest integer part", input: "1e59", want: "1" + strings.Repeat("0", 77)},
		{name: "just below a wei rounds up", input: "0.6e-18", want: "1"},
		{name: "vanishing exponent", input: "1e-2000000000", want: "0"},
		{name: "zero with huge exponent", input: "0e2000000000", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecimal(tt.input)
			require.NoError(t, err)
			got, err := DecimalToWei(d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDecimalToWeiRejectsOversizedAmounts(t *testing.T) {
	for _, input := range []string{"1e60", "1e100", "1e40000000", "1e2000000000", strings.Repeat("9", 61)} {
		d, err := ParseDecimal(input)
		require.NoError(t, err, input)

		start := time.Now()
		_, err = DecimalToWei(d)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %s", input)
		assert.Less(t, time.Since(start), time.Second, "input %s", input)
	}
}

func TestDecimalToWeiRejectsNegative(t *testing.T) {
	_, err := DecimalToWei(decimal.RequireFromString("-0.1"))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseDecimalRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "NaN", "1.2.3", "one"} {
		_, err := ParseDecimal(input)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", input)
	}
}

func TestFormatAndWeiPerGRT(t *testing.T) {
	assert.Equal(t, "1000000000000000000", WeiPerGRT().String())

	s, err := Format(big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", s)

	_, err = Format(big.NewInt(-5))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func BenchmarkWeiToDecimal(b *testing.B) {
	wei, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := WeiToDecimal(wei); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecimalToWei(b *testing.B) {
	amount := decimal.RequireFromString("123456789012.345678901234567890")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := DecimalToWei(amount); err != nil {
			b.Fatal(err)
		}
	}
}
