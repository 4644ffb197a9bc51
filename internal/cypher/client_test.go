package cypher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "FaucetPilot/internal/errors"
)

var testAddr = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

type capturedRequest struct {
	action string
	header http.Header
	body   string
}

func newTestClient(t *testing.T, handler func(action string, args []json.RawMessage) string) (*Client, *[]capturedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		var args []json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			t.Errorf("body is not a json array: %s", raw)
		}
		action := r.Header.Get("next-action")
		mu.Lock()
		captured = append(captured, capturedRequest{action: action, header: r.Header.Clone(), body: string(raw)})
		mu.Unlock()
		_, _ = io.WriteString(w, handler(action, args))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Endpoint:  srv.URL + "/testnet/",
		Origin:    "https://cypher.z1labs.ai",
		Referer:   "https://cypher.z1labs.ai/testnet/",
		UserAgent: "test-agent",
		Actions: Actions{
			GetPoints:         "points",
			GetTransferCount:  "count",
			UpdatePoints:      "update",
			ClaimFaucet:       "claim",
			RecordTransaction: "record",
		},
		Timeout: 2 * time.Second,
	}, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, &captured
}

func TestPointsSendsServerActionHeaders(t *testing.T) {
	client, captured := newTestClient(t, func(action string, args []json.RawMessage) string {
		return "0:[\"$@1\"]\n1:1250\n"
	})

	points, err := client.Points(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if points != 1250 {
		t.Fatalf("expected 1250, got %d", points)
	}

	req := (*captured)[0]
	if req.action != "points" {
		t.Fatalf("unexpected action %q", req.action)
	}
	if got := req.header.Get("accept"); got != "text/x-component" {
		t.Fatalf("unexpected accept %q", got)
	}
	if got := req.header.Get("content-type"); got != "text/plain;charset=UTF-8" {
		t.Fatalf("unexpected content-type %q", got)
	}
	if got := req.header.Get("user-agent"); got != "test-agent" {
		t.Fatalf("unexpected user-agent %q", got)
	}
	if req.body != `["`+testAddr.Hex()+`"]` {
		t.Fatalf("unexpected body %s", req.body)
	}
}

func TestTransferCountDefaultsOnMalformedEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(string, []json.RawMessage) string {
		return "0:{}\n"
	})
	count, err := client.TransferCount(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("malformed envelope must not surface an error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected default 0, got %d", count)
	}
}

func TestClaimFaucetResult(t *testing.T) {
	client, captured := newTestClient(t, func(action string, args []json.RawMessage) string {
		var payload map[string]string
		_ = json.Unmarshal(args[0], &payload)
		if payload["token"] == "ok" {
			return "1:{\"success\":true}\n"
		}
		return "1:{\"success\":false,\"errorMessage\":\"Already claimed\"}\n"
	})

	result, err := client.ClaimFaucet(context.Background(), testAddr, "ok")
	if err != nil || !result.Success {
		t.Fatalf("expected success, got %+v %v", result, err)
	}
	result, err = client.ClaimFaucet(context.Background(), testAddr, "again")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Success || result.ErrorMessage != "Already claimed" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains((*captured)[0].body, `"address":"`+testAddr.Hex()+`"`) {
		t.Fatalf("claim body missing address: %s", (*captured)[0].body)
	}
}

func TestRecordTransactionBody(t *testing.T) {
	client, captured := newTestClient(t, func(string, []json.RawMessage) string { return "1:null\n" })

	hash := common.HexToHash("0xabc")
	at := time.UnixMilli(1_700_000_000_123)
	if err := client.RecordTransaction(context.Background(), TransferRecord(testAddr, hash, at)); err != nil {
		t.Fatalf("record: %v", err)
	}

	var args []map[string]any
	if err := json.Unmarshal([]byte((*captured)[0].body), &args); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	got := args[0]
	if got["type"] != "transfer" || got["txType"] != "encrypted" || got["txHash"] != hash.Hex() {
		t.Fatalf("unexpected record %v", got)
	}
	if got["txTimestamp"] != float64(1_700_000_000_123) {
		t.Fatalf("unexpected timestamp %v", got["txTimestamp"])
	}
	if _, ok := got["tokenData"]; ok {
		t.Fatal("transfer record must not carry tokenData")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Actions: Actions{GetPoints: "points"}}, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Points(context.Background(), testAddr)
	if !xerrors.RetryableError(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

type fakeSigner struct{ message []byte }

func (f *fakeSigner) SignMessage(message []byte) ([]byte, error) {
	f.message = message
	return []byte{0xde, 0xad, 0xbe, 0xef}, nil
}

func TestBuildFaucetProof(t *testing.T) {
	signer := &fakeSigner{}
	now := time.Date(2024, 12, 1, 8, 30, 0, 123_000_000, time.UTC)

	token, err := BuildFaucetProof(signer, "https://cypher.z1labs.ai/testnet/", now)
	if err != nil {
		t.Fatalf("build proof: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64: %v", err)
	}
	var proof struct {
		Signature string `json:"signature"`
		Body      string `json:"body"`
	}
	if err := json.Unmarshal(decoded, &proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	if proof.Signature != "0xdeadbeef" {
		t.Fatalf("unexpected signature %s", proof.Signature)
	}
	if proof.Body != string(signer.message) {
		t.Fatal("signed message and proof body differ")
	}
	if !strings.Contains(proof.Body, "Issued At: 2024-12-01T08:30:00.123Z\nExpiration Time: 2024-12-01T08:32:00.123Z") {
		t.Fatalf("unexpected timestamps in body %q", proof.Body)
	}
	if !strings.HasPrefix(proof.Body, "Sign this to obtain 1 DEAI Testnet tokens") {
		t.Fatalf("unexpected body %q", proof.Body)
	}
}

type fakeAvailability map[string]bool

func (f fakeAvailability) Available(_ context.Context, contract common.Address, method string, _ common.Address) (bool, error) {
	return f[contract.Hex()+"/"+method], nil
}

func TestServiceCheckAvailability(t *testing.T) {
	contracts := Contracts{
		Faucet:          common.HexToAddress("0x01"),
		FaucetEncrypted: common.HexToAddress("0x02"),
		ERC20Deployer:   common.HexToAddress("0x03"),
	}
	chain := fakeAvailability{
		contracts.Faucet.Hex() + "/faucetAvailable":        true,
		contracts.FaucetEncrypted.Hex() + "/faucetAvailable": false,
		contracts.ERC20Deployer.Hex() + "/mintAvailable":   true,
	}
	svc := NewService(nil, chain, contracts)

	got, err := svc.CheckAvailability(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if got != (Availability{Native: true, Wrapped: false, Deploy: true}) {
		t.Fatalf("unexpected availability %+v", got)
	}
}
