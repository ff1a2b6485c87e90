package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"valuebridge/internal/cache"
	"valuebridge/internal/chain"
	"valuebridge/internal/model"
	"valuebridge/internal/transfer"
)

var (
	holderAddr = common.HexToAddress("0x0000000000000000000000000000000000000111")
	otherAddr  = common.HexToAddress("0x0000000000000000000000000000000000000222")
)

type stubToken struct {
	balance *big.Int
}

func (t *stubToken) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(t.balance), nil
}

func (t *stubToken) Transfer(context.Context, common.Address, common.Address, *big.Int) (*types.Receipt, error) {
	return &types.Receipt{TxHash: common.HexToHash("0x33"), Status: types.ReceiptStatusSuccessful}, nil
}

type stubGateway struct{}

func (stubGateway) Call(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, nil
}

func (stubGateway) Send(context.Context, chain.SendRequest) (common.Hash, error) {
	return common.HexToHash("0x44"), nil
}

func (stubGateway) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful}, nil
}

func (stubGateway) Balance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func newTestServer(t *testing.T, balance int64) (*httptest.Server, *cache.Cache) {
	t.Helper()
	token := &stubToken{balance: big.NewInt(balance)}
	resolve := func(symbol string) (transfer.Token, bool) {
		if symbol != "ACME" {
			return nil, false
		}
		return token, true
	}
	balances := cache.New(cache.NewMemoryBackend(), nil)
	transfers := transfer.NewService(transfer.Config{}, resolve, stubGateway{}, balances, nil, nil, nil)

	server := NewServer(transfers, resolve, balances, nil, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(transfers.Wait)
	return ts, balances
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Err     *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"err"`
}

func decodeResponse(t *testing.T, res *http.Response) response {
	t.Helper()
	defer res.Body.Close()
	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, 0)
	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", res.StatusCode)
	}
}

func TestBalanceReadsThrough(t *testing.T) {
	ts, _ := newTestServer(t, 250)

	res, err := http.Get(ts.URL + "/token/ACME/balance/" + holderAddr.Hex())
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	body := decodeResponse(t, res)
	if res.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("status %d success %v err %+v", res.StatusCode, body.Success, body.Err)
	}

	var data map[string]string
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["balance"] != "250" {
		t.Fatalf("balance %q, want 250", data["balance"])
	}
}

func TestBalanceUnknownSymbol(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	res, err := http.Get(ts.URL + "/token/NOPE/balance/" + holderAddr.Hex())
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	body := decodeResponse(t, res)
	if res.StatusCode != http.StatusNotFound || body.Success {
		t.Fatalf("status %d success %v", res.StatusCode, body.Success)
	}
	if body.Err == nil || body.Err.Code != model.ErrCodeValidation {
		t.Fatalf("err %+v", body.Err)
	}
}

func TestTransferAccepted(t *testing.T) {
	ts, balances := newTestServer(t, 0)
	key := cache.BalanceKey("ACME", "token", holderAddr.Hex())
	if err := balances.Set(context.Background(), key, big.NewInt(100)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	payload := `{"from":"` + holderAddr.Hex() + `","to":"` + otherAddr.Hex() + `","amount":"40"}`
	res, err := http.Post(ts.URL+"/token/ACME/transfer", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post transfer: %v", err)
	}
	body := decodeResponse(t, res)
	if res.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("status %d success %v err %+v", res.StatusCode, body.Success, body.Err)
	}

	var ticket model.TransferTicket
	if err := json.Unmarshal(body.Data, &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if ticket.TransactionUUID == "" {
		t.Fatalf("ticket has no transaction uuid")
	}

	value, ok, err := balances.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("read debited balance: ok=%v err=%v", ok, err)
	}
	if value.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("debited balance %s, want 60", value)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	ts, balances := newTestServer(t, 0)
	key := cache.BalanceKey("ACME", "token", holderAddr.Hex())
	if err := balances.Set(context.Background(), key, big.NewInt(5)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	payload := `{"from":"` + holderAddr.Hex() + `","to":"` + otherAddr.Hex() + `","amount":"40"}`
	res, err := http.Post(ts.URL+"/token/ACME/transfer", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post transfer: %v", err)
	}
	body := decodeResponse(t, res)
	if res.StatusCode != http.StatusBadRequest || body.Success {
		t.Fatalf("status %d success %v", res.StatusCode, body.Success)
	}
	if body.Err == nil || body.Err.Code != model.ErrCodeInsufficientFunds {
		t.Fatalf("err %+v", body.Err)
	}
}

func TestTransferMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	for _, payload := range []string{
		`not json`,
		`{"from":"nope","to":"` + otherAddr.Hex() + `","amount":"1"}`,
		`{"from":"` + holderAddr.Hex() + `","to":"` + otherAddr.Hex() + `","amount":"1.5"}`,
	} {
		res, err := http.Post(ts.URL+"/token/ACME/transfer", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("post transfer: %v", err)
		}
		body := decodeResponse(t, res)
		if res.StatusCode != http.StatusBadRequest || body.Success {
			t.Fatalf("payload %q: status %d success %v", payload, res.StatusCode, body.Success)
		}
	}
}
