package bepsi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectionMapping(t *testing.T) {
	m := NewSelectionMapper(nil)

	pin, mapped := m.Pin(4)
	require.True(t, mapped)
	require.Equal(t, 524, pin)

	pin, mapped = m.Pin(1)
	require.True(t, mapped)
	require.Equal(t, 516, pin)

	pin, mapped = m.Pin(6)
	require.True(t, mapped)
	require.Equal(t, 528, pin)
}

func TestSelectionFallbackIsTotal(t *testing.T) {
	m := NewSelectionMapper(nil)

	// every integer resolves to some configured pin
	for _, selection := range []int{0, 7, 9, -3, 1000} {
		pin, mapped := m.Pin(selection)
		require.False(t, mapped)
		require.Contains(t, DefaultPins, pin)
	}
}

func TestMapperUsesConfiguredPins(t *testing.T) {
	m := NewSelectionMapper([]int{516, 517})
	for i := 0; i < 20; i++ {
		require.Contains(t, []int{516, 517}, m.RandomPin())
	}
}

func TestSlotItem(t *testing.T) {
	require.Equal(t, "green", Slot{Pin: 516, Name: "green"}.Item())
	require.Equal(t, "unmarked-524", Slot{Pin: 524}.Item())
}
