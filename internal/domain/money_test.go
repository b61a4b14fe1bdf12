package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFee(t *testing.T) {
	assert.Equal(t, int64(5000), Fee(100000, 500))
	assert.Equal(t, int64(0), Fee(19, 500))
	assert.Equal(t, int64(4), Fee(99, 500))
	assert.Equal(t, int64(0), Fee(100000, 0))
}

func TestMilestoneFees_SumExactly(t *testing.T) {
	amounts := []int64{33333, 33333, 28334}
	shares := MilestoneFees(5000, 95000, amounts)

	var total int64
	for _, s := range shares {
		total += s
	}
	assert.Equal(t, int64(5000), total)
	assert.Equal(t, int64(1754), shares[0])
	assert.Equal(t, int64(1754), shares[1])
	assert.Equal(t, int64(1492), shares[2])
}

func TestSplitFee(t *testing.T) {
	assert.Equal(t, int64(2500), SplitFee(5000, 50000, 100000))
	assert.Equal(t, int64(0), SplitFee(5000, 0, 100000))
	assert.Equal(t, int64(5000), SplitFee(5000, 100000, 100000))
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "950.00", FormatMinor(95000, 2))
	assert.Equal(t, "0.05", FormatMinor(5, 2))
	assert.Equal(t, "-1.50", FormatMinor(-150, 2))
}

func TestFeeMaths_LargeAmountsDoNotOverflow(t *testing.T) {
	assert.Equal(t, int64(1_000_000_000_000_000), Fee(20_000_000_000_000_000, 500))
	assert.Equal(t, MaxAmountCents/20, Fee(MaxAmountCents, 500))

	shares := MilestoneFees(1_000_000_000, 19_000_000_000, []int64{9_500_000_000, 9_500_000_000})
	assert.Equal(t, []int64{500_000_000, 500_000_000}, shares)

	fee := Fee(MaxAmountCents, 500)
	net := MaxAmountCents - fee
	shares = MilestoneFees(fee, net, []int64{net / 3, net / 3, net - 2*(net/3)})
	var total int64
	for _, s := range shares {
		assert.Positive(t, s)
		total += s
	}
	assert.Equal(t, fee, total)

	assert.Equal(t, int64(500_000_000), SplitFee(1_000_000_000, 10_000_000_000, 20_000_000_000))
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(1))
	assert.True(t, ValidAmount(MaxAmountCents))
	assert.False(t, ValidAmount(MaxAmountCents+1))
	assert.False(t, ValidAmount(0))
	assert.False(t, ValidAmount(-5))
}
