package bepsi

// Chain implementations.
const (
	ImplEVM = "EVM"
	ImplSVM = "SVM"
)

// Stablecoin is a fungible token accepted as payment on a chain.
type Stablecoin struct {
	Symbol   string
	Decimals int
	Address  string // contract address or mint
}

// Network is one watched chain and the stablecoins accepted on it.
type Network struct {
	Implementation   string
	Name             string
	RPC              string
	RPCSubscriptions string // websocket endpoint for log subscriptions
	Stablecoins      []Stablecoin
}

// Networks is the set of account-based chains the machine accepts
// payment on. All EVM chains share one payment address; Solana uses the
// treasury's associated token accounts.
var Networks = map[string]Network{
	"polygon": {
		Implementation:   ImplEVM,
		Name:             "Polygon",
		RPC:              "https://polygon-rpc.com/",
		RPCSubscriptions: "wss://polygon-bor-rpc.publicnode.com",
		Stablecoins: []Stablecoin{
			{Symbol: "USDC", Decimals: 6, Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
			{Symbol: "USDC.e", Decimals: 6, Address: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"},
		},
	},
	"base": {
		Implementation:   ImplEVM,
		Name:             "Base",
		RPC:              "https://mainnet.base.org",
		RPCSubscriptions: "wss://base-rpc.publicnode.com",
		Stablecoins: []Stablecoin{
			{Symbol: "USDC", Decimals: 6, Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
		},
	},
	"arbitrum": {
		Implementation:   ImplEVM,
		Name:             "Arbitrum",
		RPC:              "https://arb1.arbitrum.io/rpc",
		RPCSubscriptions: "wss://arbitrum-one-rpc.publicnode.com",
		Stablecoins: []Stablecoin{
			{Symbol: "USDC.e", Decimals: 6, Address: "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"},
			{Symbol: "USDC", Decimals: 6, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"},
		},
	},
	"optimism": {
		Implementation:   ImplEVM,
		Name:             "Optimism",
		RPC:              "https://rpc.ankr.com/optimism",
		RPCSubscriptions: "wss://optimism-rpc.publicnode.com",
		Stablecoins: []Stablecoin{
			{Symbol: "USDC", Decimals: 6, Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"},
		},
	},
	"hyperevm": {
		Implementation:   ImplEVM,
		Name:             "Hyperliquid",
		RPC:              "https://rpc.hyperliquid.xyz/evm",
		RPCSubscriptions: "wss://rpc.hyperliquid.xyz/evm",
		Stablecoins: []Stablecoin{
			{Symbol: "USDC", Decimals: 6, Address: "0xb88339CB7199b77E23DB6E890353E22632Ba630f"},
			{Symbol: "USDT0", Decimals: 6, Address: "0xB8CE59FC3717ada4C02eaDF9682A9e934F625ebb"},
			{Symbol: "BESPI", Decimals: 18, Address: "0xDF400dFcd64590703C7A647141e1a30BE31F8888"},
		},
	},
	"solana": {
		Implementation:   ImplSVM,
		Name:             "Solana",
		RPC:              "https://api.mainnet-beta.solana.com",
		RPCSubscriptions: "wss://api.mainnet-beta.solana.com",
		Stablecoins: []Stablecoin{
			{Symbol: "USDC", Decimals: 6, Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		},
	},
}

// EVMNetworks returns the EVM-implementation networks in stable order.
func EVMNetworks() []Network {
	var out []Network
	for _, key := range []string{"polygon", "base", "arbitrum", "optimism", "hyperevm"} {
		out = append(out, Networks[key])
	}
	return out
}

// SVMNetworks returns the Solana-implementation networks.
func SVMNetworks() []Network {
	return []Network{Networks["solana"]}
}
