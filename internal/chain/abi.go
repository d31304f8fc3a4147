package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, scoped to exactly the functions and events this
// module consumes (spec.md §6). Parsed once at package init, the same
// pattern the teacher uses for its ERC-4626 `previewDeposit` ABI.
const (
	oracleABIJSON = `[
		{"type":"function","name":"getPrice","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"},{"type":"uint256"},{"type":"uint256"}]},
		{"type":"function","name":"forceUpdatePrice","stateMutability":"nonpayable","inputs":[{"type":"uint256"}],"outputs":[]},
		{"type":"event","name":"PriceUpdated","inputs":[{"type":"uint256","name":"price","indexed":false},{"type":"uint256","name":"timestamp","indexed":false}]}
	]`

	ammABIJSON = `[
		{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"},{"type":"uint256"},{"type":"uint256"}]},
		{"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"type":"bool"}]},
		{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"type":"function","name":"swapWethForUsdc","stateMutability":"nonpayable","inputs":[{"type":"uint256"}],"outputs":[]},
		{"type":"function","name":"swapUsdcForWeth","stateMutability":"nonpayable","inputs":[{"type":"uint256"}],"outputs":[]},
		{"type":"event","name":"Swap","inputs":[{"type":"address","name":"sender","indexed":true},{"type":"uint256","name":"amountIn","indexed":false},{"type":"uint256","name":"amountOut","indexed":false},{"type":"bool","name":"isWethToUsdc","indexed":false}]},
		{"type":"event","name":"EmergencyPaused","inputs":[{"type":"uint256","name":"timestamp","indexed":false}]},
		{"type":"event","name":"ReserveAnomaly","inputs":[{"type":"uint256","name":"wethReserve","indexed":false},{"type":"uint256","name":"usdcReserve","indexed":false}]}
	]`

	vaultABIJSON = `[
		{"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"type":"bool"}]},
		{"type":"function","name":"liquidationsBlocked","stateMutability":"view","inputs":[],"outputs":[{"type":"bool"}]},
		{"type":"function","name":"isLiquidatable","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"bool"},{"type":"uint256"}]},
		{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[{"type":"string"}],"outputs":[]},
		{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"type":"function","name":"blockLiquidations","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"type":"function","name":"unblockLiquidations","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"type":"event","name":"Liquidation","inputs":[{"type":"address","name":"liquidator","indexed":true},{"type":"address","name":"user","indexed":true},{"type":"uint256","name":"debtRepaid","indexed":false},{"type":"uint256","name":"collateralSeized","indexed":false},{"type":"uint256","name":"oraclePrice","indexed":false}]},
		{"type":"event","name":"LiquidationsBlocked","inputs":[{"type":"uint256","name":"timestamp","indexed":false}]}
	]`
)

var (
	OracleABI abi.ABI
	AMMABI    abi.ABI
	VaultABI  abi.ABI
)

func init() {
	OracleABI = mustParseABI(oracleABIJSON)
	AMMABI = mustParseABI(ammABIJSON)
	VaultABI = mustParseABI(vaultABIJSON)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: failed to parse contract ABI: " + err.Error())
	}
	return parsed
}
