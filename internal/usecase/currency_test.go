package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatRupees_IndianGrouping(t *testing.T) {
	require.Equal(t, "₹0", FormatRupees(0))
	require.Equal(t, "₹500", FormatRupees(500))
	require.Equal(t, "₹5,000", FormatRupees(5000))
	require.Equal(t, "₹50,000", FormatRupees(50000))
	require.Equal(t, "₹5,00,000", FormatRupees(500000))
	require.Equal(t, "₹1,00,00,000", FormatRupees(10000000))
}

func TestFormatRupees_Negative(t *testing.T) {
	require.Equal(t, "-₹1,500", FormatRupees(-1500))
}
