package endpoint

import "ArbPull/internal/domain/models"

// Defaults returns the public endpoints used when none are configured.
func Defaults() []models.Endpoint {
	return []models.Endpoint{
		{Chain: "ethereum", URL: "https://rpc.ankr.com/eth", Provider: "ankr"},
		{Chain: "ethereum", URL: "https://ethereum-rpc.publicnode.com", Provider: "publicnode"},
		{Chain: "ethereum", URL: "https://1rpc.io/eth", Provider: "1rpc"},
		{Chain: "base", URL: "https://mainnet.base.org", Provider: "base"},
		{Chain: "base", URL: "https://rpc.ankr.com/base", Provider: "ankr"},
		{Chain: "base", URL: "https://base-rpc.publicnode.com", Provider: "publicnode"},
		{Chain: "arbitrum", URL: "https://arb1.arbitrum.io/rpc", Provider: "arbitrum"},
		{Chain: "arbitrum", URL: "https://rpc.ankr.com/arbitrum", Provider: "ankr"},
		{Chain: "arbitrum", URL: "https://arbitrum-one-rpc.publicnode.com", Provider: "publicnode"},
		{Chain: "polygon", URL: "https://polygon-rpc.com", Provider: "polygon"},
		{Chain: "polygon", URL: "https://rpc.ankr.com/polygon", Provider: "ankr"},
		{Chain: "polygon", URL: "https://polygon-bor-rpc.publicnode.com", Provider: "publicnode"},
	}
}
