package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"MCPF-Flow/internal/trust/registry"
)

// anchorRegistryABI 描述链上 DID 锚定合约的只读接口。
const anchorRegistryABI = `[{"inputs":[{"name":"didHash","type":"bytes32"}],"name":"anchorOf","outputs":[{"name":"digest","type":"bytes32"},{"name":"revoked","type":"bool"},{"name":"updatedAt","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// ContractCaller mirrors the subset of ethclient methods required for
// read-only contract calls, so tests can substitute a fake backend.
type ContractCaller interface {
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config describes how to construct an EVM compatible anchor reader.
type Config struct {
	Name     string
	RPCURL   string
	Contract string
	Notes    string
}

// Client implements registry.AnchorReader for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	caller    ContractCaller
	contract  common.Address
	abi       abi.ABI
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置锚定链 RPC 地址")
	}
	contract := strings.TrimSpace(cfg.Contract)
	if contract == "" {
		return nil, errors.New("未配置 DID 锚定合约地址")
	}
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("非法的合约地址: %s", contract)
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接锚定链节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	parsedABI, err := abi.JSON(strings.NewReader(anchorRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("解析锚定合约 ABI 失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       eth,
		caller:    eth,
		contract:  common.HexToAddress(contract),
		abi:       parsedABI,
	}, nil
}

// NewCallerClient wraps an in-process contract caller for testing purposes.
func NewCallerClient(name string, caller ContractCaller, contract common.Address) *Client {
	parsedABI, err := abi.JSON(strings.NewReader(anchorRegistryABI))
	if err != nil {
		// The ABI is a compile-time constant; a parse failure is a programming error.
		panic(err)
	}
	return &Client{
		name:     name,
		notes:    "in-process backend",
		caller:   caller,
		contract: contract,
		abi:      parsedABI,
	}
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.caller = nil
}

// AnchorOf queries the anchor record for the given DID.
func (c *Client) AnchorOf(ctx context.Context, did string) (registry.Anchor, error) {
	if c == nil {
		return registry.Anchor{}, errors.New("未初始化的锚定链客户端")
	}
	did = strings.TrimSpace(did)
	if did == "" {
		return registry.Anchor{}, errors.New("DID 不能为空")
	}
	caller := c.caller
	if caller == nil {
		return registry.Anchor{}, errors.New("客户端缺少链访问后端")
	}

	didHash := crypto.Keccak256Hash([]byte(did))
	input, err := c.abi.Pack("anchorOf", [32]byte(didHash))
	if err != nil {
		return registry.Anchor{}, fmt.Errorf("编码 anchorOf 调用失败: %w", err)
	}

	output, err := caller.CallContract(ctx, gethcore.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return registry.Anchor{}, fmt.Errorf("查询 DID 锚定记录失败: %w", err)
	}

	values, err := c.abi.Unpack("anchorOf", output)
	if err != nil {
		return registry.Anchor{}, fmt.Errorf("解码 anchorOf 返回值失败: %w", err)
	}
	if len(values) != 3 {
		return registry.Anchor{}, fmt.Errorf("anchorOf 返回值数量异常: %d", len(values))
	}

	digest, ok := values[0].([32]byte)
	if !ok {
		return registry.Anchor{}, errors.New("anchorOf digest 类型异常")
	}
	revoked, ok := values[1].(bool)
	if !ok {
		return registry.Anchor{}, errors.New("anchorOf revoked 类型异常")
	}
	updatedAt, ok := values[2].(*big.Int)
	if !ok {
		return registry.Anchor{}, errors.New("anchorOf updatedAt 类型异常")
	}

	return registry.Anchor{
		Digest:    digest,
		Revoked:   revoked,
		UpdatedAt: updatedAt.Uint64(),
	}, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (registry.ChainSnapshot, error) {
	if c == nil {
		return registry.ChainSnapshot{}, errors.New("未初始化的锚定链客户端")
	}
	if c.eth == nil {
		return registry.ChainSnapshot{Notes: c.notes}, nil
	}

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return registry.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return registry.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return registry.ChainSnapshot{
		ChainID:     "0x" + chainID.Text(16),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

var _ registry.AnchorReader = (*Client)(nil)
