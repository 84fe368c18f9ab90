package bepsi

import (
	"fmt"
	"os"
	"strings"

	"github.com/jinzhu/configor"
	"github.com/shopspring/decimal"
)

// Rail names, used for DISABLE_<RAIL> escape hatches and startup logs.
const (
	RailDiscord   = "discord"
	RailEVM       = "evm"
	RailSolana    = "solana"
	RailArkade    = "arkade"
	RailLightning = "lightning"
	RailSpark     = "spark"
)

var AllRails = []string{RailDiscord, RailEVM, RailSolana, RailArkade, RailLightning, RailSpark}

type Config struct {
	Machine struct {
		PulseMs   int    `default:"500"`
		JournalDB string `default:"bepsi.db"`
	}

	WebAPI struct {
		Bind string `default:""`
		Port string `default:"3500"`
	}

	Recorder struct {
		URL   string `default:"https://nocodb.dctrl.wtf/api/v1/db/data/v1/bepsi/purchases" env:"NOCO_CREATE_NEW_PURCHASE_URL"`
		Token string `env:"NOCODB_API_TOKEN"`
	}

	Discord struct {
		Token     string `env:"DISCORD_TOKEN"`
		ChannelID string `env:"DISCORD_CHANNEL_ID"`
	}

	EVM struct {
		PaymentAddress string `env:"PAYMENT_ADDRESS"`
	}

	Solana struct {
		TreasuryAddress string `env:"SOLANA_TREASURY_ADDRESS"`
	}

	Arkade struct {
		URL string `env:"ARKADE_WS_URL"`
	}

	Lightning struct {
		URL string `env:"LIGHTNING_LNBIT_URL"`
	}

	Spark struct {
		BridgeURL string `default:"http://127.0.0.1:8686" env:"SPARK_BRIDGE_URL"`
		Treasury  string `env:"SPARK_TREASURY_ADDRESS"`
		Pins      []SparkPinConfig
		Tokens    []SparkTokenConfig
	}

	// Loggers route bus events to rotating log files.
	Loggers map[string]LoggerConfig
}

// SparkPinConfig binds one vending pin to its dedicated Spark wallet.
type SparkPinConfig struct {
	Pin      int
	Name     string
	Address  string
	Mnemonic string
	Sats     int64 // required sats payment for this pin
}

// SparkTokenConfig is one fungible token accepted on the Spark rail,
// with the required amount per pin.
type SparkTokenConfig struct {
	Key        string
	Identifier string
	Name       string
	// Chain metadata reports 0 decimals for BEPSI; it is actually 6.
	Decimals   int `default:"6"`
	PinAmounts map[int]float64
}

// Amount returns the required token amount for a pin, or false when the
// pin does not accept this token.
func (t SparkTokenConfig) Amount(pin int) (decimal.Decimal, bool) {
	amt, ok := t.PinAmounts[pin]
	if !ok || amt <= 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(amt), true
}

type LoggerConfig struct {
	Path  string
	Types []string
}

// LoadConfig reads the TOML config file (when present) and overlays
// environment variables per the env tags above.
func LoadConfig(confPath string) (Config, error) {
	c := Config{}
	var err error
	if confPath != "" {
		err = configor.Load(&c, confPath)
	} else {
		err = configor.Load(&c)
	}
	return c, err
}

// RailStatus reports why a rail was disabled at startup.
type RailStatus struct {
	Rail    string
	Missing []string
}

// Validate checks every rail's mandatory configuration once, up front.
// Misconfigured rails are returned as disabled (with every missing key
// enumerated, not just the first); the error is non-nil only when no
// payment rail at all is configured, which is fatal.
func (c Config) Validate() (disabled []RailStatus, err error) {
	configured := 0
	for _, rail := range AllRails {
		missing := c.missingKeys(rail)
		if len(missing) > 0 {
			disabled = append(disabled, RailStatus{Rail: rail, Missing: missing})
			continue
		}
		configured++
	}
	if configured == 0 {
		return disabled, fmt.Errorf("no payment rail configured: need at least one of PAYMENT_ADDRESS, SOLANA_TREASURY_ADDRESS, ARKADE_WS_URL, LIGHTNING_LNBIT_URL, or spark pins")
	}
	return disabled, nil
}

// RailEnabled reports whether a rail should start: not explicitly
// disabled via DISABLE_<RAIL>, and all its mandatory keys present.
func (c Config) RailEnabled(rail string) bool {
	if os.Getenv("DISABLE_"+strings.ToUpper(rail)) == "true" {
		return false
	}
	return len(c.missingKeys(rail)) == 0
}

func (c Config) missingKeys(rail string) []string {
	var missing []string
	need := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}
	switch rail {
	case RailDiscord:
		need("DISCORD_TOKEN", c.Discord.Token)
		need("DISCORD_CHANNEL_ID", c.Discord.ChannelID)
	case RailEVM:
		need("PAYMENT_ADDRESS", c.EVM.PaymentAddress)
	case RailSolana:
		need("SOLANA_TREASURY_ADDRESS", c.Solana.TreasuryAddress)
	case RailArkade:
		need("ARKADE_WS_URL", c.Arkade.URL)
	case RailLightning:
		need("LIGHTNING_LNBIT_URL", c.Lightning.URL)
	case RailSpark:
		if len(c.Spark.Pins) == 0 {
			missing = append(missing, "spark.pins")
			break
		}
		for _, p := range c.Spark.Pins {
			prefix := fmt.Sprintf("spark.pins[%d].", p.Pin)
			if p.Address == "" {
				missing = append(missing, prefix+"address")
			}
			if p.Mnemonic == "" {
				missing = append(missing, prefix+"mnemonic")
			}
			if p.Sats <= 0 {
				missing = append(missing, prefix+"sats")
			}
		}
	}
	return missing
}

// Slots assembles the immutable slot table from the Spark pin and token
// configuration. Pins configured on other rails only (shared-address
// chains) still appear, priced by selection mapping alone.
func (c Config) Slots() map[int]Slot {
	slots := make(map[int]Slot)
	for _, pin := range DefaultPins {
		slots[pin] = Slot{Pin: pin}
	}
	for _, p := range c.Spark.Pins {
		slot := Slot{
			Pin:          p.Pin,
			Name:         p.Name,
			SatsAmount:   p.Sats,
			TokenAmounts: make(map[string]decimal.Decimal),
		}
		for _, t := range c.Spark.Tokens {
			if amt, ok := t.Amount(p.Pin); ok {
				slot.TokenAmounts[t.Identifier] = amt
			}
		}
		slots[p.Pin] = slot
	}
	return slots
}

// Pins returns the configured pin set in selection order.
func (c Config) Pins() []int {
	if len(c.Spark.Pins) == 0 {
		return DefaultPins
	}
	pins := make([]int, 0, len(c.Spark.Pins))
	for _, p := range c.Spark.Pins {
		pins = append(pins, p.Pin)
	}
	return pins
}
