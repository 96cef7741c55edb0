package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/logger"
)

var (
	errRPCURLRequired   = errors.New("chain rpc url is required")
	errContractRequired = errors.New("chain contract address is required")
	errOperatorRequired = errors.New("chain operator key is required")
	errCustodyRequired  = errors.New("chain custody address is required")
)

// backend is the slice of ethclient.Client the gateway uses. Kept as an
// interface so tests can substitute a recording fake.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// Client is the sole boundary to the external ledger. Writes return pending
// submissions; finality only ever arrives through Receipt and Events. The
// client never retries on its own.
type Client struct {
	eth      backend
	contract common.Address
	operator common.Address
	custody  common.Address
	key      *ecdsa.PrivateKey
	signer   types.Signer

	callTimeout   time.Duration
	submitTimeout time.Duration
	gasPadPercent int64
}

// NewClient dials the RPC endpoint, loads the operator key, and verifies the
// remote chain id matches the configured one.
func NewClient(ctx context.Context, cfg config.ChainConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, errRPCURLRequired
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, errContractRequired
	}
	if !common.IsHexAddress(cfg.CustodyAddress) {
		return nil, errCustodyRequired
	}
	if strings.TrimSpace(cfg.OperatorKey) == "" {
		return nil, errOperatorRequired
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing operator key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc %q: %w", cfg.RPCURL, err)
	}

	remoteID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("querying chain id: %w", err)
	}
	if remoteID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain id mismatch: configured %d, rpc reports %s", cfg.ChainID, remoteID)
	}

	c := &Client{
		eth:           eth,
		contract:      common.HexToAddress(cfg.ContractAddress),
		operator:      crypto.PubkeyToAddress(key.PublicKey),
		custody:       common.HexToAddress(cfg.CustodyAddress),
		key:           key,
		signer:        types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		callTimeout:   cfg.CallTimeout,
		submitTimeout: cfg.SubmitTimeout,
		gasPadPercent: cfg.GasPadPercent,
	}

	if logg != nil {
		logg.Info(ctx, "chain client initialized")
	}

	return c, nil
}

// Operator is the address that signs submissions.
func (c *Client) Operator() common.Address {
	return c.operator
}

// Custody is the default holding address for minted vouchers.
func (c *Client) Custody() common.Address {
	return c.custody
}

// Mint submits a mintVoucher transaction and returns the pending submission
// with the advisory token id (totalSupply + 1). The ledger may assign a
// different id under concurrent mints; the reconciler corrects it ledger-wins.
func (c *Client) Mint(ctx context.Context, recipient common.Address, merchantRef, metadataURI string) (*Submission, error) {
	supply, err := c.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}

	calldata, err := parsedABI.Pack("mintVoucher", recipient, merchantRef, metadataURI)
	if err != nil {
		return nil, fmt.Errorf("packing mintVoucher: %w", err)
	}

	sub, err := c.submit(ctx, calldata)
	if err != nil {
		return nil, err
	}
	sub.TokenID = supply + 1
	return sub, nil
}

// Transfer submits a transferVoucher transaction.
func (c *Client) Transfer(ctx context.Context, from, to common.Address, tokenID uint64) (*Submission, error) {
	calldata, err := parsedABI.Pack("transferVoucher", from, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("packing transferVoucher: %w", err)
	}

	sub, err := c.submit(ctx, calldata)
	if err != nil {
		return nil, err
	}
	sub.TokenID = tokenID
	return sub, nil
}

// Use submits a redeemVoucher transaction.
func (c *Client) Use(ctx context.Context, tokenID uint64) (*Submission, error) {
	calldata, err := parsedABI.Pack("redeemVoucher", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("packing redeemVoucher: %w", err)
	}

	sub, err := c.submit(ctx, calldata)
	if err != nil {
		return nil, err
	}
	sub.TokenID = tokenID
	return sub, nil
}

// Recycle submits a recycleVoucher transaction revoking an already-used token.
func (c *Client) Recycle(ctx context.Context, tokenID uint64) (*Submission, error) {
	calldata, err := parsedABI.Pack("recycleVoucher", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("packing recycleVoucher: %w", err)
	}

	sub, err := c.submit(ctx, calldata)
	if err != nil {
		return nil, err
	}
	sub.TokenID = tokenID
	return sub, nil
}

// TotalSupply reads the number of tokens minted so far. Callers derive the
// next token id as supply + 1; the value is advisory under concurrency.
func (c *Client) TotalSupply(ctx context.Context) (uint64, error) {
	out, err := c.view(ctx, "totalSupply")
	if err != nil {
		return 0, err
	}
	supply, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("totalSupply: unexpected output %T", out[0])
	}
	return supply.Uint64(), nil
}

// IsValid reads whether the token is live on the ledger.
func (c *Client) IsValid(ctx context.Context, tokenID uint64) (bool, error) {
	out, err := c.view(ctx, "isValid", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return false, err
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isValid: unexpected output %T", out[0])
	}
	return valid, nil
}

// State reads the full contract-side record for a token. A zero owner means
// the id was never assigned.
func (c *Client) State(ctx context.Context, tokenID uint64) (*TokenState, error) {
	out, err := c.view(ctx, "getVoucher", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("getVoucher: expected 4 outputs, got %d", len(out))
	}

	owner, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("getVoucher: unexpected owner output %T", out[0])
	}
	redeemed, _ := out[1].(bool)
	recycled, _ := out[2].(bool)
	merchantRef, _ := out[3].(string)

	return &TokenState{
		Exists:      owner != (common.Address{}),
		Owner:       owner,
		Redeemed:    redeemed,
		Recycled:    recycled,
		MerchantRef: merchantRef,
	}, nil
}

// Receipt looks up the mined outcome for a submission. ErrReceiptNotFound
// means not mined yet.
func (c *Client) Receipt(ctx context.Context, txHash string) (*Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("fetching receipt %s: %w", txHash, err)
	}

	return confirmationFromReceipt(txHash, receipt), nil
}

// Events returns decoded contract logs in [fromBlock, toBlock].
func (c *Client) Events(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{mintedTopic, transferredTopic, redeemedTopic, recycledTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filtering logs [%d,%d]: %w", fromBlock, toBlock, err)
	}

	events := make([]Event, 0, len(logs))
	for _, entry := range logs {
		event, err := decodeLog(entry)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// BlockNumber returns the current head block for event-window pagination.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching block number: %w", err)
	}
	return head, nil
}

// Ping verifies RPC connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.eth == nil {
		return errors.New("chain client not initialized")
	}
	_, err := c.BlockNumber(ctx)
	return err
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c == nil || c.eth == nil {
		return
	}
	c.eth.Close()
}

func (c *Client) view(ctx context.Context, method string, args ...any) ([]any, error) {
	calldata, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{From: c.operator, To: &c.contract, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}

	out, err := parsedABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return out, nil
}

// submit estimates gas, pads it, signs with the operator key, and sends the
// transaction. It returns as soon as the node accepts the submission.
func (c *Client) submit(ctx context.Context, calldata []byte) (*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(ctx, c.operator)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas price: %w", err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.operator, To: &c.contract, Data: calldata})
	if err != nil {
		return nil, fmt.Errorf("estimating gas: %w", err)
	}
	gasLimit = padGas(gasLimit, c.gasPadPercent)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Data:     calldata,
	})

	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}

	estimate := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	return &Submission{
		TxHash:       signed.Hash().Hex(),
		CostEstimate: weiToDecimal(estimate),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// padGas grows the estimate by percent to absorb state drift between
// estimation and mining.
func padGas(estimate uint64, percent int64) uint64 {
	if percent <= 0 {
		return estimate
	}
	padded := new(big.Int).SetUint64(estimate)
	padded.Mul(padded, big.NewInt(100+percent))
	padded.Div(padded, big.NewInt(100))
	return padded.Uint64()
}

// weiToDecimal converts wei into native units for audit cost columns.
func weiToDecimal(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

func confirmationFromReceipt(txHash string, receipt *types.Receipt) *Confirmation {
	conf := &Confirmation{
		TxHash:  txHash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		conf.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.EffectiveGasPrice != nil {
		cost := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
		conf.CostActual = weiToDecimal(cost)
	}
	return conf
}

func decodeLog(entry types.Log) (Event, error) {
	if len(entry.Topics) == 0 {
		return Event{}, fmt.Errorf("log %s has no topics", entry.TxHash)
	}

	event := Event{
		TxHash:      entry.TxHash.Hex(),
		BlockNumber: entry.BlockNumber,
	}

	switch entry.Topics[0] {
	case mintedTopic:
		if len(entry.Topics) < 3 {
			return Event{}, fmt.Errorf("VoucherMinted log %s missing topics", entry.TxHash)
		}
		event.Kind = EventMinted
		event.TokenID = topicToUint64(entry.Topics[1])
		event.To = common.BytesToAddress(entry.Topics[2].Bytes())
		ref, err := unpackMerchantRef(entry.Data)
		if err != nil {
			return Event{}, err
		}
		event.MerchantRef = ref
	case transferredTopic:
		if len(entry.Topics) < 4 {
			return Event{}, fmt.Errorf("VoucherTransferred log %s missing topics", entry.TxHash)
		}
		event.Kind = EventTransferred
		event.TokenID = topicToUint64(entry.Topics[1])
		event.From = common.BytesToAddress(entry.Topics[2].Bytes())
		event.To = common.BytesToAddress(entry.Topics[3].Bytes())
	case redeemedTopic:
		if len(entry.Topics) < 2 {
			return Event{}, fmt.Errorf("VoucherRedeemed log %s missing topics", entry.TxHash)
		}
		event.Kind = EventRedeemed
		event.TokenID = topicToUint64(entry.Topics[1])
	case recycledTopic:
		if len(entry.Topics) < 2 {
			return Event{}, fmt.Errorf("VoucherRecycled log %s missing topics", entry.TxHash)
		}
		event.Kind = EventRecycled
		event.TokenID = topicToUint64(entry.Topics[1])
	default:
		return Event{}, fmt.Errorf("unknown log topic %s in tx %s", entry.Topics[0], entry.TxHash)
	}

	return event, nil
}

func topicToUint64(topic common.Hash) uint64 {
	return new(big.Int).SetBytes(topic.Bytes()).Uint64()
}

func unpackMerchantRef(data []byte) (string, error) {
	values, err := parsedABI.Events["VoucherMinted"].Inputs.NonIndexed().UnpackValues(data)
	if err != nil {
		return "", fmt.Errorf("unpacking VoucherMinted data: %w", err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("VoucherMinted data: expected 1 value, got %d", len(values))
	}
	ref, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("VoucherMinted data: unexpected type %T", values[0])
	}
	return ref, nil
}
