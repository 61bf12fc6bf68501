package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already rounded", in: "12.34", want: "12.34"},
		{name: "half rounds up", in: "0.125", want: "0.13"},
		{name: "below half rounds down", in: "0.124", want: "0.12"},
		{name: "integer", in: "20", want: "20"},
		{name: "long fraction", in: "33.333333", want: "33.33"},
		{name: "zero", in: "0", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundMoney(decimal.RequireFromString(tt.in))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(1000), decimal.NewFromInt(10))
	assert.True(t, decimal.NewFromInt(100).Equal(got))

	got = Percent(decimal.RequireFromString("99.99"), decimal.RequireFromString("12.5"))
	assert.True(t, decimal.RequireFromString("12.49875").Equal(got))
}

func TestClampZero(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(ClampZero(decimal.NewFromInt(-60))))
	assert.True(t, decimal.NewFromInt(5).Equal(ClampZero(decimal.NewFromInt(5))))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "usd", NormalizeCurrency(" USD "))
}
