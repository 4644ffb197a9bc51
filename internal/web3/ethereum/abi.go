package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// cypherABIJSON 合并了周期任务会用到的全部合约方法，方法名互不冲突。
const cypherABIJSON = `[
 {"type":"function","name":"faucetToken","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"faucetAvailable","stateMutability":"view","inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"mintAvailable","stateMutability":"view","inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"createToken","stateMutability":"nonpayable","inputs":[{"name":"_name","type":"string"},{"name":"_symbol","type":"string"},{"name":"_decimals","type":"uint8"},{"name":"_initialTotalSupply","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Method names understood by the client.
const (
	MethodFaucetToken     = "faucetToken"
	MethodFaucetAvailable = "faucetAvailable"
	MethodMintAvailable   = "mintAvailable"
	MethodCreateToken     = "createToken"
	MethodTransfer        = "transfer"
	MethodBalanceOf       = "balanceOf"
)

var cypherABI = mustParseABI(cypherABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
