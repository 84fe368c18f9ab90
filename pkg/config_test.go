package bepsi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateNoRailsIsFatal(t *testing.T) {
	disabled, err := Config{}.Validate()
	require.Error(t, err)
	require.Len(t, disabled, len(AllRails), "every rail should report itself disabled")
}

func TestValidateEnumeratesAllMissingKeys(t *testing.T) {
	c := Config{}
	c.EVM.PaymentAddress = "0x1111111111111111111111111111111111111111"
	c.Spark.Pins = []SparkPinConfig{
		{Pin: 516, Name: "green", Address: "sp1pin516"}, // no mnemonic, no sats
	}

	disabled, err := c.Validate()
	require.NoError(t, err, "one configured rail is enough to start")

	var spark []string
	for _, d := range disabled {
		if d.Rail == RailSpark {
			spark = d.Missing
		}
	}
	require.Equal(t, []string{"spark.pins[516].mnemonic", "spark.pins[516].sats"}, spark,
		"every missing key must be reported at once, not just the first")
}

func TestRailEnabled(t *testing.T) {
	c := Config{}
	c.EVM.PaymentAddress = "0x1111111111111111111111111111111111111111"
	require.True(t, c.RailEnabled(RailEVM))
	require.False(t, c.RailEnabled(RailSolana))

	t.Setenv("DISABLE_EVM", "true")
	require.False(t, c.RailEnabled(RailEVM), "DISABLE_EVM must win over valid config")
}

func TestTokenAmountPerPin(t *testing.T) {
	tok := SparkTokenConfig{
		Key:        "BepsiToken",
		Identifier: "btkn1x",
		Name:       "BEPSI",
		Decimals:   6,
		PinAmounts: map[int]float64{516: 2, 517: 0},
	}

	amt, ok := tok.Amount(516)
	require.True(t, ok)
	require.Equal(t, "2", amt.String())

	_, ok = tok.Amount(517)
	require.False(t, ok, "zero price means the pin doesn't take this token")
	_, ok = tok.Amount(999)
	require.False(t, ok)
}

func TestSlotsAssembly(t *testing.T) {
	c := Config{}
	c.Spark.Pins = []SparkPinConfig{
		{Pin: 516, Name: "green", Address: "sp1a", Mnemonic: "m", Sats: 1000},
	}
	c.Spark.Tokens = []SparkTokenConfig{
		{Key: "BepsiToken", Identifier: "btkn1x", Name: "BEPSI", Decimals: 6, PinAmounts: map[int]float64{516: 2}},
	}

	slots := c.Slots()
	require.Equal(t, "green", slots[516].Name)
	require.Equal(t, int64(1000), slots[516].SatsAmount)
	require.Equal(t, "2", slots[516].TokenAmounts["btkn1x"].String())

	// unconfigured machine pins still exist for the shared-address rails
	require.Contains(t, slots, 528)
	require.Equal(t, "unmarked-528", slots[528].Item())
}
