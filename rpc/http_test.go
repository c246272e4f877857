package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"zkusd/crypto"
	"zkusd/native/token"
	"zkusd/native/vault"
	"zkusd/observability"
	"zkusd/storage"
)

const testToken = "test-rpc-token"

type rpcFixture struct {
	server    *httptest.Server
	engine    *vault.Engine
	oracleKey *crypto.PrivateKey
	owner     crypto.Address
	secret    string
}

func newRPCFixture(t *testing.T, limitPerMin int) *rpcFixture {
	t.Helper()

	db := storage.NewMemDB()
	zk := token.NewLedger(db, "ZKUSD")
	coll := token.NewLedger(db, "WZK")

	engine := vault.NewEngine(zk, coll)
	engine.SetState(vault.NewStore(db))
	engine.SetBlockHeight(42)

	oracleKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	ownerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	owner := ownerKey.PubKey().Address()

	require.NoError(t, coll.Mint(owner, 1_000_000_000_000))

	srv := NewServer(engine, nil, []string{testToken}, limitPerMin)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &rpcFixture{
		server:    ts,
		engine:    engine,
		oracleKey: oracleKey,
		owner:     owner,
		secret:    hex.EncodeToString([]byte("hunter2")),
	}
}

func (f *rpcFixture) call(t *testing.T, method string, params interface{}, authed bool) RPCResponse {
	t.Helper()

	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  []json.RawMessage{raw},
		ID:      1,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func (f *rpcFixture) attestation(t *testing.T, price, height uint64) *attestationParams {
	t.Helper()
	att, err := vault.SignAttestation(f.oracleKey, price, height)
	require.NoError(t, err)
	return &attestationParams{
		Price:       att.Price,
		BlockHeight: att.BlockHeight,
		Signature:   hex.EncodeToString(att.Signature),
	}
}

func (f *rpcFixture) createVault(t *testing.T) {
	t.Helper()
	resp := f.call(t, "vault_create", createVaultParams{
		Owner:     f.owner.String(),
		Secret:    f.secret,
		OracleKey: f.oracleKey.PubKey().Address().String(),
	}, true)
	require.Nil(t, resp.Error)
}

func TestRPCCreateAndGetVault(t *testing.T) {
	f := newRPCFixture(t, 0)
	f.createVault(t)

	resp := f.call(t, "vault_get", vaultOpParams{Owner: f.owner.String()}, false)
	require.Nil(t, resp.Error)

	var result vaultResult
	remarshal(t, resp.Result, &result)
	require.Equal(t, f.owner.String(), result.Owner)
	require.Equal(t, uint64(0), result.CollateralAmount)
	require.Equal(t, uint64(0), result.DebtAmount)
	require.False(t, result.InteractionFlag)
}

func TestRPCMutatingMethodRequiresToken(t *testing.T) {
	f := newRPCFixture(t, 0)

	resp := f.call(t, "vault_create", createVaultParams{
		Owner:     f.owner.String(),
		Secret:    f.secret,
		OracleKey: f.oracleKey.PubKey().Address().String(),
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestRPCUnknownMethod(t *testing.T) {
	f := newRPCFixture(t, 0)

	resp := f.call(t, "vault_teleport", struct{}{}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPCMalformedBody(t *testing.T) {
	f := newRPCFixture(t, 0)

	resp, err := http.Post(f.server.URL+"/", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeParseError, decoded.Error.Code)
}

func TestRPCDepositMintFlow(t *testing.T) {
	f := newRPCFixture(t, 0)
	f.createVault(t)

	resp := f.call(t, "vault_deposit", vaultOpParams{
		Owner:  f.owner.String(),
		Amount: 3_000_000_000,
		Secret: f.secret,
	}, true)
	require.Nil(t, resp.Error)

	resp = f.call(t, "vault_mint", vaultOpParams{
		Owner:       f.owner.String(),
		Amount:      1_000_000_000,
		Secret:      f.secret,
		Attestation: f.attestation(t, vault.Precision, 42),
	}, true)
	require.Nil(t, resp.Error)

	resp = f.call(t, "vault_get", vaultOpParams{Owner: f.owner.String()}, false)
	require.Nil(t, resp.Error)
	var result vaultResult
	remarshal(t, resp.Result, &result)
	require.Equal(t, uint64(3_000_000_000), result.CollateralAmount)
	require.Equal(t, uint64(1_000_000_000), result.DebtAmount)
	require.True(t, result.InteractionFlag)

	resp = f.call(t, "vault_assertInteraction", vaultOpParams{Owner: f.owner.String()}, true)
	require.Nil(t, resp.Error)

	resp = f.call(t, "vault_assertInteraction", vaultOpParams{Owner: f.owner.String()}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInteraction, resp.Error.Code)
}

func TestRPCGetHealthFactor(t *testing.T) {
	f := newRPCFixture(t, 0)
	f.createVault(t)

	resp := f.call(t, "vault_deposit", vaultOpParams{
		Owner:  f.owner.String(),
		Amount: 3_000_000_000,
		Secret: f.secret,
	}, true)
	require.Nil(t, resp.Error)

	resp = f.call(t, "vault_mint", vaultOpParams{
		Owner:       f.owner.String(),
		Amount:      2_000_000_000,
		Secret:      f.secret,
		Attestation: f.attestation(t, vault.Precision, 42),
	}, true)
	require.Nil(t, resp.Error)

	resp = f.call(t, "vault_getHealthFactor", vaultOpParams{
		Owner:       f.owner.String(),
		Attestation: f.attestation(t, vault.Precision, 42),
	}, false)
	require.Nil(t, resp.Error)

	var result healthFactorResult
	remarshal(t, resp.Result, &result)
	require.Equal(t, uint64(100), result.HealthFactor)
}

func TestRPCStaleAttestationMapsToOracleCode(t *testing.T) {
	f := newRPCFixture(t, 0)
	f.createVault(t)

	resp := f.call(t, "vault_deposit", vaultOpParams{
		Owner:  f.owner.String(),
		Amount: 3_000_000_000,
		Secret: f.secret,
	}, true)
	require.Nil(t, resp.Error)

	resp = f.call(t, "vault_mint", vaultOpParams{
		Owner:       f.owner.String(),
		Amount:      1_000_000_000,
		Secret:      f.secret,
		Attestation: f.attestation(t, vault.Precision, 41),
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeOracleInvalid, resp.Error.Code)
}

func TestRPCMissingAttestationRejected(t *testing.T) {
	f := newRPCFixture(t, 0)
	f.createVault(t)

	resp := f.call(t, "vault_mint", vaultOpParams{
		Owner:  f.owner.String(),
		Amount: 1_000_000_000,
		Secret: f.secret,
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestMethodLabelBoundsCardinality(t *testing.T) {
	require.Equal(t, "vault_mint", methodLabel("vault_mint"))
	require.Equal(t, "vault_get", methodLabel("vault_get"))
	require.Equal(t, "vault_getHealthFactor", methodLabel("vault_getHealthFactor"))
	require.Equal(t, "unknown", methodLabel("vault_teleport"))
	require.Equal(t, "unknown", methodLabel(""))
}

func TestRPCHealthFactorFailuresCounted(t *testing.T) {
	f := newRPCFixture(t, 0)
	counter := observability.Vault().Operations.WithLabelValues("getHealthFactor", "error")
	before := testutil.ToFloat64(counter)

	// No vault exists for the owner, so the read fails and must be counted.
	resp := f.call(t, "vault_getHealthFactor", vaultOpParams{
		Owner:       f.owner.String(),
		Attestation: f.attestation(t, vault.Precision, 42),
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeVaultNotFound, resp.Error.Code)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRPCCreateRejectsEmptySecret(t *testing.T) {
	f := newRPCFixture(t, 0)
	resp := f.call(t, "vault_create", createVaultParams{
		Owner:     f.owner.String(),
		Secret:    "",
		OracleKey: f.oracleKey.PubKey().Address().String(),
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRPCUnknownVaultMapsToNotFound(t *testing.T) {
	f := newRPCFixture(t, 0)

	resp := f.call(t, "vault_get", vaultOpParams{Owner: f.owner.String()}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeVaultNotFound, resp.Error.Code)
}

func TestRPCRateLimit(t *testing.T) {
	f := newRPCFixture(t, 2)

	for i := 0; i < 2; i++ {
		resp := f.call(t, "vault_get", vaultOpParams{Owner: f.owner.String()}, false)
		require.NotNil(t, resp.Error)
		require.Equal(t, codeVaultNotFound, resp.Error.Code)
	}
	resp := f.call(t, "vault_get", vaultOpParams{Owner: f.owner.String()}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func remarshal(t *testing.T, from interface{}, to interface{}) {
	t.Helper()
	raw, err := json.Marshal(from)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, to))
}
