package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"zkusd/crypto"
	nativecommon "zkusd/native/common"
	"zkusd/native/vault"
)

type createVaultParams struct {
	Owner     string `json:"owner"`
	Secret    string `json:"secret"`
	OracleKey string `json:"oracleKey"`
}

type vaultOpParams struct {
	Owner       string             `json:"owner"`
	Amount      uint64             `json:"amount"`
	Secret      string             `json:"secret"`
	Attestation *attestationParams `json:"attestation,omitempty"`
}

type liquidateParams struct {
	Liquidator  string             `json:"liquidator"`
	Owner       string             `json:"owner"`
	Attestation *attestationParams `json:"attestation"`
}

type attestationParams struct {
	Price       uint64 `json:"price"`
	BlockHeight uint64 `json:"blockHeight"`
	Signature   string `json:"signature"`
}

type blockHeightParams struct {
	Height uint64 `json:"height"`
}

type vaultResult struct {
	Owner               string `json:"owner"`
	Address             string `json:"address"`
	CollateralAmount    uint64 `json:"collateralAmount"`
	DebtAmount          uint64 `json:"debtAmount"`
	OwnershipCommitment string `json:"ownershipCommitment"`
	OracleKey           string `json:"oracleKey"`
	InteractionFlag     bool   `json:"interactionFlag"`
}

type healthFactorResult struct {
	HealthFactor uint64 `json:"healthFactor"`
}

type okResult struct {
	Ok bool `json:"ok"`
}

// mutatingMethods require bearer auth when tokens are configured.
var mutatingMethods = map[string]bool{
	"vault_create":            true,
	"vault_deposit":           true,
	"vault_redeem":            true,
	"vault_mint":              true,
	"vault_withdraw":          true,
	"vault_burn":              true,
	"vault_liquidate":         true,
	"vault_assertInteraction": true,
	"vault_setBlockHeight":    true,
}

var readMethods = map[string]bool{
	"vault_getHealthFactor": true,
	"vault_get":             true,
}

// methodLabel bounds metric label cardinality: any method string outside the
// dispatch table collapses into a single "unknown" label.
func methodLabel(method string) string {
	if mutatingMethods[method] || readMethods[method] {
		return method
	}
	return "unknown"
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token", nil)
		return
	}
	switch req.Method {
	case "vault_create":
		s.handleCreate(w, req)
	case "vault_deposit":
		s.handleDeposit(w, req)
	case "vault_redeem":
		s.handleRedeem(w, req)
	case "vault_mint":
		s.handleMint(w, req)
	case "vault_withdraw":
		s.handleWithdraw(w, req)
	case "vault_burn":
		s.handleBurn(w, req)
	case "vault_liquidate":
		s.handleLiquidate(w, req)
	case "vault_getHealthFactor":
		s.handleGetHealthFactor(w, req)
	case "vault_assertInteraction":
		s.handleAssertInteraction(w, req)
	case "vault_get":
		s.handleGet(w, req)
	case "vault_setBlockHeight":
		s.handleSetBlockHeight(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, req *RPCRequest) {
	var params createVaultParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", nil)
		return
	}
	oracleKey := s.defaultOracle
	if strings.TrimSpace(params.OracleKey) != "" {
		oracleKey, err = crypto.DecodeAddress(params.OracleKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid oracle key address", nil)
			return
		}
	}
	if oracleKey.IsZero() {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "oracle key required", nil)
		return
	}
	secret, err := decodeSecret(params.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	created, err := s.engine.CreateVault(owner, secret, oracleKey)
	s.metrics.RecordOperation("create", err)
	if err != nil {
		s.writeEngineError(w, req.ID, "vault_create", err)
		return
	}
	writeResult(w, req.ID, newVaultResult(created))
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	s.runVaultOp(w, req, "deposit", func(owner crypto.Address, p *vaultOpParams, secret []byte, att *vault.PriceAttestation) error {
		return s.engine.DepositCollateral(owner, p.Amount, secret)
	}, false)
}

func (s *Server) handleRedeem(w http.ResponseWriter, req *RPCRequest) {
	s.runVaultOp(w, req, "redeem", func(owner crypto.Address, p *vaultOpParams, secret []byte, att *vault.PriceAttestation) error {
		return s.engine.RedeemCollateral(owner, p.Amount, secret, att)
	}, true)
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	s.runVaultOp(w, req, "mint", func(owner crypto.Address, p *vaultOpParams, secret []byte, att *vault.PriceAttestation) error {
		return s.engine.MintZkUSD(owner, p.Amount, secret, att)
	}, true)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	s.runVaultOp(w, req, "withdraw", func(owner crypto.Address, p *vaultOpParams, secret []byte, att *vault.PriceAttestation) error {
		return s.engine.WithdrawZkUSD(owner, p.Amount, secret)
	}, false)
}

func (s *Server) handleBurn(w http.ResponseWriter, req *RPCRequest) {
	s.runVaultOp(w, req, "burn", func(owner crypto.Address, p *vaultOpParams, secret []byte, att *vault.PriceAttestation) error {
		return s.engine.BurnZkUSD(owner, p.Amount, secret)
	}, false)
}

func (s *Server) runVaultOp(w http.ResponseWriter, req *RPCRequest, op string, fn func(crypto.Address, *vaultOpParams, []byte, *vault.PriceAttestation) error, needsAttestation bool) {
	var params vaultOpParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", nil)
		return
	}
	secret, err := decodeSecret(params.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var att *vault.PriceAttestation
	if params.Attestation != nil {
		att, err = decodeAttestation(params.Attestation)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	} else if needsAttestation {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "attestation required", nil)
		return
	}
	opErr := fn(owner, &params, secret, att)
	s.metrics.RecordOperation(op, opErr)
	if opErr != nil {
		s.writeEngineError(w, req.ID, "vault_"+op, opErr)
		return
	}
	writeResult(w, req.ID, okResult{Ok: true})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, req *RPCRequest) {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	liquidator, err := crypto.DecodeAddress(params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidator address", nil)
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", nil)
		return
	}
	if params.Attestation == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "attestation required", nil)
		return
	}
	att, err := decodeAttestation(params.Attestation)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	opErr := s.engine.Liquidate(liquidator, owner, att)
	s.metrics.RecordOperation("liquidate", opErr)
	if opErr != nil {
		s.writeEngineError(w, req.ID, "vault_liquidate", opErr)
		return
	}
	s.metrics.Liquidations.Inc()
	writeResult(w, req.ID, okResult{Ok: true})
}

func (s *Server) handleGetHealthFactor(w http.ResponseWriter, req *RPCRequest) {
	var params vaultOpParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", nil)
		return
	}
	if params.Attestation == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "attestation required", nil)
		return
	}
	att, err := decodeAttestation(params.Attestation)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	hf, opErr := s.engine.GetHealthFactor(owner, att)
	s.metrics.RecordOperation("getHealthFactor", opErr)
	if opErr != nil {
		s.writeEngineError(w, req.ID, "vault_getHealthFactor", opErr)
		return
	}
	s.metrics.ObserveHealthFactor(hf)
	writeResult(w, req.ID, healthFactorResult{HealthFactor: hf})
}

func (s *Server) handleAssertInteraction(w http.ResponseWriter, req *RPCRequest) {
	var params vaultOpParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", nil)
		return
	}
	opErr := s.engine.AssertInteractionFlag(owner)
	s.metrics.RecordOperation("assertInteraction", opErr)
	if opErr != nil {
		s.writeEngineError(w, req.ID, "vault_assertInteraction", opErr)
		return
	}
	writeResult(w, req.ID, okResult{Ok: true})
}

func (s *Server) handleGet(w http.ResponseWriter, req *RPCRequest) {
	var params vaultOpParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", nil)
		return
	}
	v, opErr := s.engine.GetVault(owner)
	if opErr != nil {
		s.writeEngineError(w, req.ID, "vault_get", opErr)
		return
	}
	writeResult(w, req.ID, newVaultResult(v))
}

func (s *Server) handleSetBlockHeight(w http.ResponseWriter, req *RPCRequest) {
	var params blockHeightParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.engine.SetBlockHeight(params.Height)
	writeResult(w, req.ID, okResult{Ok: true})
}

func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, method string, err error) {
	status, code := classifyEngineError(err)
	s.logger.Warn("rpc call failed", "method", method, "error", err)
	writeError(w, status, id, code, err.Error(), nil)
}

func classifyEngineError(err error) (int, int) {
	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		return http.StatusNotFound, codeVaultNotFound
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, vault.ErrOracleSignature),
		errors.Is(err, vault.ErrOracleStale),
		errors.Is(err, vault.ErrOraclePrice):
		return http.StatusBadRequest, codeOracleInvalid
	case errors.Is(err, vault.ErrHealthTooLow),
		errors.Is(err, vault.ErrHealthTooHigh):
		return http.StatusConflict, codeSolvency
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrInsufficientCollateral),
		errors.Is(err, vault.ErrAmountExceedsDebt):
		return http.StatusConflict, codeInsufficient
	case errors.Is(err, vault.ErrInteractionFlagUnset):
		return http.StatusConflict, codeInteraction
	case errors.Is(err, vault.ErrVaultExists),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidSecret):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object, got %d", len(req.Params))
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func decodeSecret(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, errors.New("secret must not be empty")
	}
	secret, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("secret must be hex encoded: %w", err)
	}
	return secret, nil
}

func decodeAttestation(params *attestationParams) (*vault.PriceAttestation, error) {
	sigHex := strings.TrimPrefix(strings.TrimSpace(params.Signature), "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("attestation signature must be hex encoded: %w", err)
	}
	return &vault.PriceAttestation{
		Price:       params.Price,
		BlockHeight: params.BlockHeight,
		Signature:   sig,
	}, nil
}

func newVaultResult(v *vault.Vault) vaultResult {
	return vaultResult{
		Owner:               v.Owner.String(),
		Address:             v.Address.String(),
		CollateralAmount:    v.CollateralAmount,
		DebtAmount:          v.DebtAmount,
		OwnershipCommitment: hex.EncodeToString(v.OwnershipCommitment[:]),
		OracleKey:           v.OracleKey.String(),
		InteractionFlag:     v.InteractionFlag,
	}
}
