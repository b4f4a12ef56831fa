package daemon

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/syscoin-index/sysindex/pkg/wire"
)

// BlockchainInfo mirrors the fields sysindexd needs from getblockchaininfo.
type BlockchainInfo struct {
	Chain         string `json:"chain"`
	Blocks        uint32 `json:"blocks"`
	Headers       uint32 `json:"headers"`
	BestBlockHash string `json:"bestblockhash"`
	Pruned        bool   `json:"pruned"`
}

// GetBlockchainInfo calls getblockchaininfo.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info BlockchainInfo
	if err := c.Call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBestBlockHash calls getbestblockhash.
func (c *Client) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	if err := c.Call(ctx, "getbestblockhash", nil, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlockHash calls getblockhash for the block at height.
func (c *Client) GetBlockHash(ctx context.Context, height uint32) (string, error) {
	var hash string
	if err := c.Call(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// blockHeaderJSON mirrors getblockheader's verbose=true response.
type blockHeaderJSON struct {
	Hash              string `json:"hash"`
	Height            uint32 `json:"height"`
	Version           int32  `json:"version"`
	PreviousBlockHash string `json:"previousblockhash"`
	MerkleRoot        string `json:"merkleroot"`
	Time              uint32 `json:"time"`
	Bits              string `json:"bits"`
	Nonce             uint32 `json:"nonce"`
}

// GetBlockHeader fetches and parses the header for blockHash.
func (c *Client) GetBlockHeader(ctx context.Context, blockHash string) (*wire.Header, uint32, error) {
	var raw string
	if err := c.Call(ctx, "getblockheader", []interface{}{blockHash, false}, &raw); err != nil {
		return nil, 0, err
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("decode header hex: %w", err)
	}
	hdr, err := wire.ParseHeader(data)
	if err != nil {
		return nil, 0, err
	}

	var verbose blockHeaderJSON
	if err := c.Call(ctx, "getblockheader", []interface{}{blockHash, true}, &verbose); err != nil {
		return nil, 0, err
	}
	return hdr, verbose.Height, nil
}

// GetBlockRaw fetches the raw consensus-serialized block bytes for
// blockHash via getblock(verbosity=0).
func (c *Client) GetBlockRaw(ctx context.Context, blockHash string) ([]byte, error) {
	var raw string
	if err := c.Call(ctx, "getblock", []interface{}{blockHash, 0}, &raw); err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode block hex: %w", err)
	}
	return data, nil
}

// MempoolEntry mirrors the fields sysindexd needs from getmempoolentry.
type MempoolEntry struct {
	VSize   uint32 `json:"vsize"`
	Fee     uint64 `json:"-"`
	FeeBTC  float64 `json:"fee"`
	Time    int64  `json:"time"`
	Height  uint32 `json:"height"`
	Depends []string `json:"depends"`
}

// GetRawMempool lists every txid currently in the daemon's mempool.
func (c *Client) GetRawMempool(ctx context.Context) ([]string, error) {
	var txids []string
	if err := c.Call(ctx, "getrawmempool", []interface{}{false}, &txids); err != nil {
		return nil, err
	}
	return txids, nil
}

// GetMempoolEntry fetches details for a single mempool transaction.
func (c *Client) GetMempoolEntry(ctx context.Context, txid string) (*MempoolEntry, error) {
	var entry MempoolEntry
	if err := c.Call(ctx, "getmempoolentry", []interface{}{txid}, &entry); err != nil {
		return nil, err
	}
	entry.Fee = uint64(entry.FeeBTC * 1e8)
	return &entry, nil
}

// GetRawTransaction fetches the raw bytes of a mempool or confirmed
// transaction by txid.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	var raw string
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, false}, &raw); err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode tx hex: %w", err)
	}
	return data, nil
}

// SendRawTransaction broadcasts a signed transaction and returns its txid.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (string, error) {
	var txid string
	if err := c.Call(ctx, "sendrawtransaction", []interface{}{hex.EncodeToString(rawTx)}, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// FeeEstimate mirrors estimatesmartfee's response. FeeRate is the
// daemon's value as reported; no unit conversion is applied.
type FeeEstimate struct {
	FeeRate float64 `json:"feerate"`
	Blocks  int     `json:"blocks"`
}

// EstimateSmartFee estimates the fee rate needed for confirmation within
// confTarget blocks.
func (c *Client) EstimateSmartFee(ctx context.Context, confTarget int) (*FeeEstimate, error) {
	var est FeeEstimate
	if err := c.Call(ctx, "estimatesmartfee", []interface{}{confTarget}, &est); err != nil {
		return nil, err
	}
	return &est, nil
}
