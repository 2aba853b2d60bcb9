// internal/services/ledger_service.go
package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/vaultstream/drm-backend/internal/config"
)

// LedgerService queries the on-chain licensing contract through JSON-RPC. The
// contract exposes a single read: checkLicense(address,uint256) -> bool.
type LedgerService struct {
	rpcURL   string
	contract string
	client   *http.Client
}

var checkLicenseSelector = abiSelector("checkLicense(address,uint256)")

func NewLedgerService(cfg config.LedgerConfig) *LedgerService {
	return &LedgerService{
		rpcURL:   cfg.RPCURL,
		contract: cfg.ContractAddress,
		client:   &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HasLicense performs an eth_call against the licensing contract and decodes
// the boolean return word. Any transport or RPC failure is returned as an
// error so the resolver can fail closed.
func (s *LedgerService) HasLicense(ctx context.Context, walletAddress, tokenID string) (bool, error) {
	callData, err := encodeCheckLicense(walletAddress, tokenID)
	if err != nil {
		return false, fmt.Errorf("encoding checkLicense call: %w", err)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{"to": s.contract, "data": callData},
			"latest",
		},
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("ledger RPC unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("ledger RPC returned status %d: %s", resp.StatusCode, body)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return false, fmt.Errorf("decoding ledger response: %w", err)
	}
	if rpcResp.Error != nil {
		return false, fmt.Errorf("ledger RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	result := strings.TrimPrefix(rpcResp.Result, "0x")
	if result == "" {
		return false, fmt.Errorf("empty eth_call result")
	}

	word, ok := new(big.Int).SetString(result, 16)
	if !ok {
		return false, fmt.Errorf("malformed eth_call result %q", rpcResp.Result)
	}

	return word.Sign() != 0, nil
}

// encodeCheckLicense packs the selector and ABI-encoded arguments: the wallet
// address left-padded to 32 bytes, then the token id as a uint256.
func encodeCheckLicense(walletAddress, tokenID string) (string, error) {
	addrHex := strings.TrimPrefix(strings.ToLower(walletAddress), "0x")
	addr, err := hex.DecodeString(addrHex)
	if err != nil || len(addr) != 20 {
		return "", fmt.Errorf("invalid wallet address %q", walletAddress)
	}

	id, err := parseTokenID(tokenID)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, 4+64)
	data = append(data, checkLicenseSelector...)
	data = append(data, make([]byte, 12)...)
	data = append(data, addr...)
	data = append(data, id.FillBytes(make([]byte, 32))...)

	return "0x" + hex.EncodeToString(data), nil
}

func parseTokenID(tokenID string) (*big.Int, error) {
	base := 10
	s := tokenID
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 16
		s = s[2:]
	}

	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}
	return id, nil
}

func abiSelector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}
