package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

// segwitMarker and segwitFlag are the reserved marker/flag pair (BIP-144)
// that introduces a witness-carrying transaction. A legacy transaction's
// first varint (input count) is never 0x00, so the marker is unambiguous.
const (
	segwitMarker = 0x00
	segwitFlag   = 0x01
)

// TxIn is a transaction input.
type TxIn struct {
	PrevOut   Outpoint
	Script    []byte // opaque scriptSig bytes
	Sequence  uint32
	Witness   [][]byte // present only on segwit transactions
}

// TxOut is a transaction output.
type TxOut struct {
	Amount Amount
	Script []byte // opaque scriptPubKey bytes
}

// Transaction is a Bitcoin-consensus-serialized transaction.
type Transaction struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32
}

// IsCoinbase reports whether tx has the single all-zero-outpoint input
// that marks a coinbase (block reward) transaction.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsZero()
}

// hasWitness reports whether any input carries a witness stack.
func (tx *Transaction) hasWitness() bool {
	for _, in := range tx.Inputs {
		if len(in.Witness) > 0 {
			return true
		}
	}
	return false
}

// Serialize encodes tx in consensus wire format, including the BIP-144
// witness envelope when any input carries a witness.
func (tx *Transaction) Serialize() []byte {
	witness := tx.hasWitness()

	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	if witness {
		buf = append(buf, segwitMarker, segwitFlag)
	}
	buf = AppendVarInt(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = in.PrevOut.Append(buf)
		buf = AppendVarInt(buf, uint64(len(in.Script)))
		buf = append(buf, in.Script...)
		buf = binary.LittleEndian.AppendUint32(buf, in.Sequence)
	}
	buf = AppendVarInt(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = appendAmount(buf, out.Amount)
		buf = AppendVarInt(buf, uint64(len(out.Script)))
		buf = append(buf, out.Script...)
	}
	if witness {
		for _, in := range tx.Inputs {
			buf = AppendVarInt(buf, uint64(len(in.Witness)))
			for _, item := range in.Witness {
				buf = AppendVarInt(buf, uint64(len(item)))
				buf = append(buf, item...)
			}
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, tx.LockTime)
	return buf
}

// appendAmount serializes an Amount. On the base (non-Liquid) build every
// output is plain, so this always writes an 8-byte little-endian value;
// a Liquid build would additionally frame a commitment, left unimplemented
// here since the base indexer never constructs confidential outputs itself.
func appendAmount(buf []byte, a Amount) []byte {
	return binary.LittleEndian.AppendUint64(buf, a.Value)
}

// ParseTransaction decodes one transaction from r.
func ParseTransaction(r io.Reader) (*Transaction, error) {
	tx := &Transaction{}

	var versionAndMarker [4]byte
	if _, err := io.ReadFull(r, versionAndMarker[:]); err != nil {
		return nil, fmt.Errorf("wire: read tx version: %w", err)
	}
	tx.Version = binary.LittleEndian.Uint32(versionAndMarker[:])

	inCount, err := ReadVarInt(r)
	witness := false
	if err == nil && inCount == segwitMarker {
		var flag [1]byte
		if _, ferr := io.ReadFull(r, flag[:]); ferr != nil {
			return nil, fmt.Errorf("wire: read segwit flag: %w", ferr)
		}
		if flag[0] != segwitFlag {
			return nil, fmt.Errorf("wire: unsupported segwit flag %#x", flag[0])
		}
		witness = true
		inCount, err = ReadVarInt(r)
	}
	if err != nil {
		return nil, fmt.Errorf("wire: read input count: %w", err)
	}

	tx.Inputs = make([]TxIn, inCount)
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		var opBuf [OutpointSize]byte
		if _, err := io.ReadFull(r, opBuf[:]); err != nil {
			return nil, fmt.Errorf("wire: read input %d outpoint: %w", i, err)
		}
		op, _, err := ParseOutpoint(opBuf[:])
		if err != nil {
			return nil, err
		}
		in.PrevOut = op

		scriptLen, err := ReadVarInt(r)
		if err != nil {
			return nil, fmt.Errorf("wire: read input %d script length: %w", i, err)
		}
		in.Script = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, in.Script); err != nil {
			return nil, fmt.Errorf("wire: read input %d script: %w", i, err)
		}

		var seq [4]byte
		if _, err := io.ReadFull(r, seq[:]); err != nil {
			return nil, fmt.Errorf("wire: read input %d sequence: %w", i, err)
		}
		in.Sequence = binary.LittleEndian.Uint32(seq[:])
	}

	outCount, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read output count: %w", err)
	}
	tx.Outputs = make([]TxOut, outCount)
	for i := range tx.Outputs {
		out := &tx.Outputs[i]
		var val [8]byte
		if _, err := io.ReadFull(r, val[:]); err != nil {
			return nil, fmt.Errorf("wire: read output %d value: %w", i, err)
		}
		out.Amount = PlainAmount(binary.LittleEndian.Uint64(val[:]))

		scriptLen, err := ReadVarInt(r)
		if err != nil {
			return nil, fmt.Errorf("wire: read output %d script length: %w", i, err)
		}
		out.Script = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, out.Script); err != nil {
			return nil, fmt.Errorf("wire: read output %d script: %w", i, err)
		}
	}

	if witness {
		for i := range tx.Inputs {
			itemCount, err := ReadVarInt(r)
			if err != nil {
				return nil, fmt.Errorf("wire: read witness %d item count: %w", i, err)
			}
			items := make([][]byte, itemCount)
			for j := range items {
				itemLen, err := ReadVarInt(r)
				if err != nil {
					return nil, fmt.Errorf("wire: read witness %d/%d length: %w", i, j, err)
				}
				item := make([]byte, itemLen)
				if _, err := io.ReadFull(r, item); err != nil {
					return nil, fmt.Errorf("wire: read witness %d/%d: %w", i, j, err)
				}
				items[j] = item
			}
			tx.Inputs[i].Witness = items
		}
	}

	var lockTime [4]byte
	if _, err := io.ReadFull(r, lockTime[:]); err != nil {
		return nil, fmt.Errorf("wire: read locktime: %w", err)
	}
	tx.LockTime = binary.LittleEndian.Uint32(lockTime[:])

	return tx, nil
}

// ParseTransactionBytes is a convenience wrapper around ParseTransaction.
func ParseTransactionBytes(b []byte) (*Transaction, error) {
	return ParseTransaction(bytes.NewReader(b))
}

// TxID computes the transaction hash. Per BIP-141 this excludes the
// witness data: legacy and segwit transactions with identical effects
// share the same TxID.
func (tx *Transaction) TxID() chainhash.Hash {
	if !tx.hasWitness() {
		return chainhash.Sum(tx.Serialize())
	}
	stripped := &Transaction{Version: tx.Version, LockTime: tx.LockTime}
	stripped.Inputs = make([]TxIn, len(tx.Inputs))
	for i, in := range tx.Inputs {
		stripped.Inputs[i] = TxIn{PrevOut: in.PrevOut, Script: in.Script, Sequence: in.Sequence}
	}
	stripped.Outputs = tx.Outputs
	return chainhash.Sum(stripped.Serialize())
}

// VSize returns the virtual size in vbytes used for feerate computation:
// (3*baseSize + totalSize) / 4, rounded up.
func (tx *Transaction) VSize() uint32 {
	total := len(tx.Serialize())
	base := total
	if tx.hasWitness() {
		stripped := &Transaction{Version: tx.Version, LockTime: tx.LockTime, Outputs: tx.Outputs}
		stripped.Inputs = make([]TxIn, len(tx.Inputs))
		for i, in := range tx.Inputs {
			stripped.Inputs[i] = TxIn{PrevOut: in.PrevOut, Script: in.Script, Sequence: in.Sequence}
		}
		base = len(stripped.Serialize())
	}
	weight := 3*base + total
	return uint32((weight + 3) / 4)
}

// txJSON is the JSON shim carrying hex-encoded byte fields.
type txJSON struct {
	Version  uint32    `json:"version"`
	Inputs   []txInJSON  `json:"vin"`
	Outputs  []txOutJSON `json:"vout"`
	LockTime uint32    `json:"locktime"`
}

type txInJSON struct {
	PrevOut  Outpoint `json:"prevout"`
	Script   string   `json:"scriptSig"`
	Sequence uint32   `json:"sequence"`
	Witness  []string `json:"witness,omitempty"`
}

type txOutJSON struct {
	Value  *uint64 `json:"value,omitempty"`
	Script string  `json:"scriptPubKey"`
}

// MarshalJSON renders the transaction with hex-encoded script/witness fields.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	j := txJSON{Version: tx.Version, LockTime: tx.LockTime}
	for _, in := range tx.Inputs {
		ij := txInJSON{PrevOut: in.PrevOut, Script: hex.EncodeToString(in.Script), Sequence: in.Sequence}
		for _, w := range in.Witness {
			ij.Witness = append(ij.Witness, hex.EncodeToString(w))
		}
		j.Inputs = append(j.Inputs, ij)
	}
	for _, out := range tx.Outputs {
		oj := txOutJSON{Script: hex.EncodeToString(out.Script)}
		if out.Amount.Valid {
			v := out.Amount.Value
			oj.Value = &v
		}
		j.Outputs = append(j.Outputs, oj)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a transaction from its hex-shimmed JSON form.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	tx.Version = j.Version
	tx.LockTime = j.LockTime
	tx.Inputs = make([]TxIn, len(j.Inputs))
	for i, ij := range j.Inputs {
		script, err := hex.DecodeString(ij.Script)
		if err != nil {
			return fmt.Errorf("wire: decode vin[%d] script: %w", i, err)
		}
		in := TxIn{PrevOut: ij.PrevOut, Script: script, Sequence: ij.Sequence}
		for _, w := range ij.Witness {
			wb, err := hex.DecodeString(w)
			if err != nil {
				return fmt.Errorf("wire: decode vin[%d] witness: %w", i, err)
			}
			in.Witness = append(in.Witness, wb)
		}
		tx.Inputs[i] = in
	}
	tx.Outputs = make([]TxOut, len(j.Outputs))
	for i, oj := range j.Outputs {
		script, err := hex.DecodeString(oj.Script)
		if err != nil {
			return fmt.Errorf("wire: decode vout[%d] script: %w", i, err)
		}
		amount := Amount{}
		if oj.Value != nil {
			amount = PlainAmount(*oj.Value)
		}
		tx.Outputs[i] = TxOut{Amount: amount, Script: script}
	}
	return nil
}
