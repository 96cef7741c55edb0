package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// voucherABI describes the PerkMint voucher contract surface the gateway
// touches: four writes, three views, four events.
const voucherABI = `[
	{"type":"function","name":"mintVoucher","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"merchantRef","type":"string"},{"name":"metadataURI","type":"string"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"transferVoucher","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"redeemVoucher","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"recycleVoucher","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isValid","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getVoucher","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"owner","type":"address"},{"name":"redeemed","type":"bool"},{"name":"recycled","type":"bool"},{"name":"merchantRef","type":"string"}]},
	{"type":"event","name":"VoucherMinted","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"merchantRef","type":"string","indexed":false}]},
	{"type":"event","name":"VoucherTransferred","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true}]},
	{"type":"event","name":"VoucherRedeemed","inputs":[{"name":"tokenId","type":"uint256","indexed":true}]},
	{"type":"event","name":"VoucherRecycled","inputs":[{"name":"tokenId","type":"uint256","indexed":true}]}
]`

var (
	parsedABI abi.ABI

	mintedTopic      common.Hash
	transferredTopic common.Hash
	redeemedTopic    common.Hash
	recycledTopic    common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(voucherABI))
	if err != nil {
		panic("chain: parse voucher abi: " + err.Error())
	}
	parsedABI = parsed

	mintedTopic = parsedABI.Events["VoucherMinted"].ID
	transferredTopic = parsedABI.Events["VoucherTransferred"].ID
	redeemedTopic = parsedABI.Events["VoucherRedeemed"].ID
	recycledTopic = parsedABI.Events["VoucherRecycled"].ID
}
