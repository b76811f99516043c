// Command sign-tx builds and signs a transaction for the node's POST /api/v1/txs.
//
//	sign-tx -key 0x... -contract limit_order -type submit_order -nonce 1 \
//	    -funds 1000:orai -msg '{"direction":"sell","assets":[...]}'
//
// Without -key a fresh keypair is generated and printed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

func main() {
	var (
		keyHex    = flag.String("key", "", "hex private key (generated if empty)")
		chainID   = flag.String("chain-id", "hyperswap-devnet", "chain id bound into the signature")
		txType    = flag.String("type", "", "message type, e.g. submit_order or transfer")
		target    = flag.String("contract", "", "contract address or label (limit_order, converter, pair/<label>)")
		nonce     = flag.Uint64("nonce", 1, "account nonce, must exceed the committed one")
		funds     = flag.String("funds", "", "comma separated native coins, e.g. 1000:orai")
		sendToken = flag.String("send-token", "", "token to send with the message, e.g. 5:token:0x...")
		msg       = flag.String("msg", "{}", "message body as JSON")
	)
	flag.Parse()

	if err := run(*keyHex, *chainID, *txType, *target, *nonce, *funds, *sendToken, *msg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(keyHex, chainID, txType, target string, nonce uint64, funds, sendToken, msg string) error {
	signer, err := loadSigner(keyHex)
	if err != nil {
		return err
	}

	tx := &transaction.SignedTransaction{
		Type:   txType,
		Sender: signer.Address(),
		Nonce:  nonce,
		Msg:    json.RawMessage(msg),
	}
	if !json.Valid(tx.Msg) {
		return fmt.Errorf("-msg is not valid JSON")
	}
	if target != "" {
		tx.Contract = resolveContract(target)
	}
	if funds != "" {
		for _, s := range strings.Split(funds, ",") {
			c, err := parseCoin(s)
			if err != nil {
				return err
			}
			tx.Funds = append(tx.Funds, c)
		}
	}
	if sendToken != "" {
		c, err := parseCoin(sendToken)
		if err != nil {
			return err
		}
		tx.SendToken = &c
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	if err := transaction.Sign(chainID, tx, signer); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	recovered, err := transaction.NewVerifier(chainID).Verify(tx)
	if err != nil {
		return fmt.Errorf("verifying: %w", err)
	}

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Signer: %s\n", recovered.Hex())
	fmt.Println(string(out))
	return nil
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex != "" {
		return crypto.FromPrivateKeyHex(keyHex)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Generated key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	return signer, nil
}

// resolveContract accepts a hex address or a registry label
func resolveContract(s string) common.Address {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return crypto.ContractAddress(s)
}

// parseCoin reads "<amount>:<asset info>"
func parseCoin(s string) (asset.Asset, error) {
	amount, info, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return asset.Asset{}, fmt.Errorf("coin %q: want <amount>:<asset>", s)
	}
	n, err := numeric.ParseUint128(amount)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("coin %q: %w", s, err)
	}
	a, err := asset.ParseAssetInfo(info)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("coin %q: %w", s, err)
	}
	return asset.Asset{Info: a, Amount: n}, nil
}
