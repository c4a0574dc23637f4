package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ClampQuantity(t *testing.T) {
	testCases := []struct {
		name      string
		requested int32
		stock     int32
		expected  int32
	}{
		{name: "request above stock is clamped", requested: 12, stock: 5, expected: 5},
		{name: "request within stock passes through", requested: 3, stock: 10, expected: 3},
		{name: "request equal to stock passes through", requested: 7, stock: 7, expected: 7},
		{name: "zero stock yields zero", requested: 3, stock: 0, expected: 0},
		{name: "negative stock yields zero", requested: 1, stock: -2, expected: 0},
		{name: "negative request yields zero", requested: -4, stock: 10, expected: 0},
		{name: "zero request yields zero", requested: 0, stock: 10, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClampQuantity(tc.requested, tc.stock))
		})
	}
}
