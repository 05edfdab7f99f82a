package wallet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/blockchain"
)

// Auditor tracks which addresses and extended public keys belong to the
// user, and resolves raw wallet CSV rows (and tx-tags overrides) into
// typed Tx values the event resolver can book.
type Auditor struct {
	ownedAddresses map[string]bool
	xpubs          []string
	tags           map[string]Tag // by txid
	client         blockchain.Client
}

func NewAuditor(client blockchain.Client) *Auditor {
	return &Auditor{
		ownedAddresses: make(map[string]bool),
		tags:           make(map[string]Tag),
		client:         client,
	}
}

// AddXpubs records extended public keys on the Auditor. No addresses are
// derived from them: Owns consults only addresses registered with
// AddAddress.
func (a *Auditor) AddXpubs(xpubs []string) {
	a.xpubs = append(a.xpubs, xpubs...)
}

// AddAddress registers a single owned address.
func (a *Auditor) AddAddress(addr string) {
	a.ownedAddresses[addr] = true
}

// Owns reports whether addr is known to belong to the user.
func (a *Auditor) Owns(addr string) bool {
	return a.ownedAddresses[addr]
}

// ReadAddresses loads a newline-delimited address list file.
func ReadAddresses(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// ReadTxTags parses the Tx Tags CSV:
// tx_type,txid,exchange_rate_asset,exchange_rate,loan_id.
func (a *Auditor) ReadTxTags(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("reading tx tags header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	for _, want := range []string{"tx_type", "txid", "exchange_rate_asset", "exchange_rate", "loan_id"} {
		if _, ok := idx[want]; !ok {
			return fmt.Errorf("tx tags CSV missing column %q", want)
		}
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tx tags row: %w", err)
		}
		txid := rec[idx["txid"]]
		typ, err := ParseTxType(rec[idx["tx_type"]], txid)
		if err != nil {
			return err
		}
		tag := Tag{Type: typ, TxID: txid, LoanID: rec[idx["loan_id"]]}
		if rateAsset := strings.TrimSpace(rec[idx["exchange_rate_asset"]]); rateAsset != "" {
			asset, err := amount.ParseAsset(rateAsset)
			if err != nil {
				return fmt.Errorf("tx %s: %w", txid, err)
			}
			tag.ExchangeRateAsset = asset
			rate, err := decimal.NewFromString(rec[idx["exchange_rate"]])
			if err != nil {
				return fmt.Errorf("tx %s: bad exchange_rate: %w", txid, err)
			}
			tag.ExchangeRate = rate
		}
		a.tags[txid] = tag
	}
	return nil
}

// GenericRow is one row of the Generic Wallet CSV: asset,txid,tx_index,
// account,note.
type GenericRow struct {
	Asset   amount.Asset
	TxID    string
	TxIndex uint32
	Account string
	Note    string
}

func ReadGeneric(r io.Reader) ([]GenericRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading generic wallet header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	for _, want := range []string{"asset", "txid", "tx_index", "account", "note"} {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("generic wallet CSV missing column %q", want)
		}
	}
	var out []GenericRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading generic wallet row: %w", err)
		}
		asset, err := amount.ParseAsset(rec[idx["asset"]])
		if err != nil {
			return nil, err
		}
		idxVal, err := strconv.ParseUint(rec[idx["tx_index"]], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad tx_index %q: %w", rec[idx["tx_index"]], err)
		}
		out = append(out, GenericRow{
			Asset:   asset,
			TxID:    rec[idx["txid"]],
			TxIndex: uint32(idxVal),
			Account: rec[idx["account"]],
			Note:    rec[idx["note"]],
		})
	}
	return out, nil
}

// Resolve turns a GenericRow into a fully typed Tx by fetching the
// transaction from the blockchain client and classifying its direction
// based on which addresses the Auditor owns.
func (a *Auditor) Resolve(ctx context.Context, row GenericRow) (Tx, error) {
	if a.client == nil {
		return Tx{}, fmt.Errorf("resolving tx %s: no blockchain client configured", row.TxID)
	}
	rtx, err := a.client.GetTx(ctx, row.TxID)
	if err != nil {
		return Tx{}, fmt.Errorf("resolving tx %s: %w", row.TxID, err)
	}

	var outs []Txo
	anyOwnedOutput := false
	for i, o := range rtx.Outputs {
		amt, err := amount.Parse(row.Asset, o.Amount)
		if err != nil {
			return Tx{}, fmt.Errorf("tx %s: %w", row.TxID, err)
		}
		mine := a.Owns(o.Address)
		outs = append(outs, Txo{Index: uint32(i), Address: o.Address, Amount: amt, Mine: mine})
		if mine {
			anyOwnedOutput = true
		}
	}

	var ins []Txi
	for _, in := range rtx.Inputs {
		ins = append(ins, Txi{PrevTxID: in.PrevTxID, PrevVout: in.PrevVout})
	}

	// A transaction where every output pays an owned address is a transfer
	// between our own wallets; one owned output among others is an
	// ordinary receive; no owned output at all means funds left custody.
	dir := DirSpend
	switch {
	case anyOwnedOutput && allOutputsOwned(outs, a):
		dir = DirTransfer
	case anyOwnedOutput:
		dir = DirReceive
	}

	tx := Tx{
		TxID:        row.TxID,
		Asset:       row.Asset,
		Time:        time.Unix(rtx.UnixTime, 0).UTC(),
		Inputs:      ins,
		AccountName: row.Account,
		Note:        row.Note,
		Direction:   dir,
		Outputs:     outs,
		Type:        TxTypeSpend,
	}

	if tag, ok := a.tags[row.TxID]; ok {
		tx.Type = tag.Type
		tx.LoanID = tag.LoanID
		if !tag.ExchangeRate.IsZero() {
			tx.ExchangeRate = tag.ExchangeRate
			tx.HasOverrideRate = true
		}
	}
	return tx, nil
}

func allOutputsOwned(outs []Txo, a *Auditor) bool {
	for _, o := range outs {
		if !a.Owns(o.Address) {
			return false
		}
	}
	return len(outs) > 0
}
