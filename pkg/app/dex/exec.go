package dex

import (
	"errors"
	"fmt"
	"hash"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/app/core/bank"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

// Result codes
const (
	CodeOK uint32 = iota
	CodeParse
	CodeSignature
	CodeNonce
	CodeExecution
)

func txHash(raw []byte) string {
	return fmt.Sprintf("0x%x", ethcrypto.Keccak256(raw))
}

// deliverTx runs one transaction and folds its committed writes into h.
// It returns the result and the number of fills a matching pass produced.
func (a *App) deliverTx(h hash.Hash, height, blockTime int64, raw []byte) (abci.TxResult, int) {
	res := abci.TxResult{Hash: txHash(raw)}
	fail := func(code uint32, msgType string, err error) (abci.TxResult, int) {
		res.Code = code
		res.Log = err.Error()
		a.metrics.ObserveTx(msgType, false)
		a.logger.Infow("tx_failed", "hash", res.Hash, "type", msgType, "code", code, "err", err)
		return res, 0
	}

	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return fail(CodeParse, "invalid", err)
	}
	if _, err := a.verifier.Verify(tx); err != nil {
		return fail(CodeSignature, tx.Type, err)
	}

	// The nonce bump commits on its own so a failing message still consumes it.
	if err := a.bumpNonce(h, tx); err != nil {
		return fail(CodeNonce, tx.Type, err)
	}

	txn := a.db.Begin()
	defer txn.Discard()
	event, err := a.dispatch(txn, height, blockTime, tx)
	if err != nil {
		return fail(CodeExecution, tx.Type, err)
	}
	if err := txn.Commit(); err != nil {
		return fail(CodeExecution, tx.Type, err)
	}
	foldOps(h, txn.Ops())

	res.Events = []abci.Event{event}
	a.metrics.ObserveTx(tx.Type, true)

	fills := 0
	if tx.Type == "execute_order_book_pair" {
		fills = intAttribute(event, "total_fills")
		a.metrics.ObserveMatch(fills, intAttribute(event, "total_matched_orders"))
	}
	return res, fills
}

func (a *App) bumpNonce(h hash.Hash, tx *transaction.SignedTransaction) error {
	txn := a.db.Begin()
	defer txn.Discard()
	ledger := bank.New(storage.Prefix(txn, prefixBank))
	last, err := ledger.Nonce(tx.Sender)
	if err != nil {
		return err
	}
	if tx.Nonce <= last {
		return fmt.Errorf("%w: got %d, account at %d", ErrBadNonce, tx.Nonce, last)
	}
	if err := ledger.SetNonce(tx.Sender, tx.Nonce); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	foldOps(h, txn.Ops())
	return nil
}

// dispatch escrows the attached assets, runs the message and executes the
// resulting transfers, all inside txn.
func (a *App) dispatch(txn *storage.Txn, height, blockTime int64, tx *transaction.SignedTransaction) (abci.Event, error) {
	ledger := bank.New(storage.Prefix(txn, prefixBank))
	event := abci.Event{Type: tx.Type}

	if tx.Type == transaction.TypeTransfer {
		var m bank.TransferMsg
		if err := contract.Decode(tx.Msg, &m); err != nil {
			return event, err
		}
		if err := ledger.Send(tx.Sender, m.To, m.Amount); err != nil {
			return event, err
		}
		event.Attributes = []abci.Attribute{
			{Key: "from", Value: tx.Sender.Hex()},
			{Key: "to", Value: m.To.Hex()},
			{Key: "amount", Value: m.Amount.String()},
		}
		return event, nil
	}

	c, ok := a.contracts[tx.Contract]
	if !ok {
		return event, fmt.Errorf("%w: %s", ErrUnknownContract, tx.Contract.Hex())
	}
	event.Contract = tx.Contract.Hex()

	for _, coin := range tx.Funds {
		if err := ledger.Send(tx.Sender, tx.Contract, coin); err != nil {
			return event, fmt.Errorf("escrow funds: %w", err)
		}
	}
	if tx.SendToken != nil {
		if err := ledger.Send(tx.Sender, tx.Contract, *tx.SendToken); err != nil {
			return event, fmt.Errorf("escrow token: %w", err)
		}
	}

	ctx := &contract.Context{
		Store: storage.Prefix(txn, contractPrefix(tx.Contract)),
		Env: contract.Env{
			BlockHeight:     height,
			BlockTime:       uint64(blockTime),
			ContractAddress: tx.Contract,
		},
		Info:    contract.MessageInfo{Sender: tx.Sender, Funds: tx.Funds},
		Querier: ledger,
	}

	var resp *contract.Response
	var err error
	if tx.SendToken != nil {
		// The token ledger is the immediate caller of a hook
		ctx.Info = contract.MessageInfo{Sender: tx.SendToken.Info.Token.ContractAddr}
		resp, err = c.handler.Receive(ctx, contract.TokenReceive{Sender: tx.Sender, Token: *tx.SendToken}, tx.Type, tx.Msg)
	} else {
		resp, err = c.handler.Execute(ctx, tx.Type, tx.Msg)
	}
	if err != nil {
		return event, err
	}
	if err := ledger.Execute(tx.Contract, resp.Transfers); err != nil {
		if errors.Is(err, bank.ErrInsufficientFunds) {
			return event, fmt.Errorf("contract %s cannot cover its transfers: %w", c.Label, err)
		}
		return event, err
	}

	for _, attr := range resp.Attributes {
		event.Attributes = append(event.Attributes, abci.Attribute{Key: attr.Key, Value: attr.Value})
	}
	return event, nil
}

func intAttribute(e abci.Event, key string) int {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			n, _ := strconv.Atoi(attr.Value)
			return n
		}
	}
	return 0
}

