package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"valuebridge/internal/chain"
	"valuebridge/internal/model"
	"valuebridge/internal/notify"
)

var (
	stakerAddr      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	beneficiaryAddr = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	otherAddr       = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	intentHash      = common.HexToHash("0xabc")
	tokenUUID       = common.HexToHash("0xdef")
)

func receiptFor(tag string) *types.Receipt {
	return &types.Receipt{
		TxHash: common.BytesToHash([]byte(tag)),
		Status: types.ReceiptStatusSuccessful,
	}
}

// fakeLedgers implements ValueLedger and UtilityLedger, recording the call
// sequence and failing on demand.
type fakeLedgers struct {
	mu    sync.Mutex
	calls []string

	stakingErr    error
	mintingErr    error
	redeemingErr  error
	unstakingErr  error
	registerBTErr error

	registeredToken common.Address
	utilityTokens   []common.Address

	redeemingStarted chan struct{}
	redeemingRelease chan struct{}
}

func newFakeLedgers() *fakeLedgers {
	return &fakeLedgers{
		registeredToken: common.HexToAddress("0x00000000000000000000000000000000000000t0"),
	}
}

func (f *fakeLedgers) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeLedgers) callSequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeLedgers) ProcessStaking(_ context.Context, hash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	f.record("processStaking:" + hash.Hex())
	if f.stakingErr != nil {
		return nil, nil, f.stakingErr
	}
	return receiptFor("stake"), map[string]interface{}{"_uuid": tokenUUID}, nil
}

func (f *fakeLedgers) ProcessUnstaking(_ context.Context, hash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	f.record("processUnstaking:" + hash.Hex())
	if f.unstakingErr != nil {
		return nil, nil, f.unstakingErr
	}
	return receiptFor("unstake"), map[string]interface{}{}, nil
}

func (f *fakeLedgers) RegisterUtilityToken(_ context.Context, symbol, _ string, _ *big.Int, _ uint8, _, token common.Address, _ common.Hash) (*types.Receipt, map[string]interface{}, error) {
	f.record("registerUtilityToken:" + symbol)
	f.mu.Lock()
	f.utilityTokens = append(f.utilityTokens, token)
	f.mu.Unlock()
	return receiptFor("regvalue"), map[string]interface{}{}, nil
}

func (f *fakeLedgers) ProcessMinting(_ context.Context, hash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	f.record("processMinting:" + hash.Hex())
	if f.mintingErr != nil {
		return nil, nil, f.mintingErr
	}
	return receiptFor("mint"), map[string]interface{}{"_token": f.registeredToken}, nil
}

func (f *fakeLedgers) ProcessRedeeming(_ context.Context, hash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	f.record("processRedeeming:" + hash.Hex())
	if f.redeemingStarted != nil {
		close(f.redeemingStarted)
		f.redeemingStarted = nil
		<-f.redeemingRelease
	}
	if f.redeemingErr != nil {
		return nil, nil, f.redeemingErr
	}
	return receiptFor("redeem"), map[string]interface{}{}, nil
}

func (f *fakeLedgers) RegisterBrandedToken(_ context.Context, symbol, _ string, _ *big.Int, _ uint8, _, _ common.Address, _ common.Hash) (*types.Receipt, map[string]interface{}, error) {
	f.record("registerBrandedToken:" + symbol)
	if f.registerBTErr != nil {
		return nil, nil, f.registerBTErr
	}
	return receiptFor("regutility"), map[string]interface{}{"_token": f.registeredToken}, nil
}

type fakeToken struct {
	mu      sync.Mutex
	claimed []common.Address
	err     error
}

func (t *fakeToken) Claim(_ context.Context, beneficiary common.Address) (*types.Receipt, error) {
	t.mu.Lock()
	t.claimed = append(t.claimed, beneficiary)
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return receiptFor("claim"), nil
}

func stakeMintRunner(ledgers *fakeLedgers, token *fakeToken) *Runner {
	wf := NewStakeAndMint(StakeAndMintDeps{
		Value:   ledgers,
		Utility: ledgers,
		Resolve: func(context.Context, common.Hash) (TokenClaimer, error) {
			return token, nil
		},
		StakerAccount: stakerAddr,
	})
	return NewRunner(wf, notify.Nop{}, nil, nil, nil)
}

func stakeIntent(staker common.Address) model.SettlementIntent {
	return model.SettlementIntent{
		Workflow:    model.WorkflowStakeAndMint,
		Key:         intentHash,
		Staker:      staker,
		Beneficiary: beneficiaryAddr,
		UUID:        tokenUUID,
	}
}

func TestStakeAndMintHappyPath(t *testing.T) {
	ledgers := newFakeLedgers()
	token := &fakeToken{}
	runner := stakeMintRunner(ledgers, token)

	result := runner.Run(context.Background(), stakeIntent(stakerAddr))
	if !result.Succeeded() {
		t.Fatalf("run failed: %+v", result)
	}

	wantCalls := []string{
		"processStaking:" + intentHash.Hex(),
		"processMinting:" + intentHash.Hex(),
	}
	if got := ledgers.callSequence(); !reflect.DeepEqual(got, wantCalls) {
		t.Fatalf("call sequence %v, want %v", got, wantCalls)
	}
	if len(token.claimed) != 1 || token.claimed[0] != beneficiaryAddr {
		t.Fatalf("claim calls %v, want [%s]", token.claimed, beneficiaryAddr.Hex())
	}

	if len(result.Stages) != 3 {
		t.Fatalf("stage results %d, want 3", len(result.Stages))
	}
	wantStages := []string{"processStaking", "processMinting", "claim"}
	for i, stage := range result.Stages {
		if stage.Stage != wantStages[i] || !stage.Success {
			t.Fatalf("stage %d = %+v, want successful %s", i, stage, wantStages[i])
		}
	}
}

func TestStakeAndMintAuthorizationReject(t *testing.T) {
	ledgers := newFakeLedgers()
	token := &fakeToken{}
	runner := stakeMintRunner(ledgers, token)

	result := runner.Run(context.Background(), stakeIntent(otherAddr))
	if result.Status != model.RunRejected {
		t.Fatalf("status %s, want %s", result.Status, model.RunRejected)
	}
	if result.ErrCode != model.ErrCodeUnauthorized {
		t.Fatalf("err code %s, want %s", result.ErrCode, model.ErrCodeUnauthorized)
	}
	if len(result.Stages) != 0 {
		t.Fatalf("stage results %d, want 0", len(result.Stages))
	}
	if calls := ledgers.callSequence(); len(calls) != 0 {
		t.Fatalf("remote calls made for rejected intent: %v", calls)
	}
	if len(token.claimed) != 0 {
		t.Fatalf("claim invoked for rejected intent")
	}
}

func TestStakeAndMintAbortsOnFirstFailure(t *testing.T) {
	ledgers := newFakeLedgers()
	ledgers.stakingErr = errors.New("escrow reverted")
	token := &fakeToken{}
	runner := stakeMintRunner(ledgers, token)

	result := runner.Run(context.Background(), stakeIntent(stakerAddr))
	if result.Status != model.RunFailed {
		t.Fatalf("status %s, want %s", result.Status, model.RunFailed)
	}
	if result.FailedStage != "processStaking" {
		t.Fatalf("failed stage %s, want processStaking", result.FailedStage)
	}
	if result.ErrCode != model.ErrCodeRemoteCall {
		t.Fatalf("err code %s, want %s", result.ErrCode, model.ErrCodeRemoteCall)
	}

	wantCalls := []string{"processStaking:" + intentHash.Hex()}
	if got := ledgers.callSequence(); !reflect.DeepEqual(got, wantCalls) {
		t.Fatalf("call sequence %v, want %v", got, wantCalls)
	}
	if len(token.claimed) != 0 {
		t.Fatalf("claim invoked after aborted run")
	}
}

func TestReceiptTimeoutClassification(t *testing.T) {
	ledgers := newFakeLedgers()
	ledgers.mintingErr = fmt.Errorf("wrap: %w", chain.ErrReceiptNotFound)
	token := &fakeToken{}
	runner := stakeMintRunner(ledgers, token)

	result := runner.Run(context.Background(), stakeIntent(stakerAddr))
	if result.FailedStage != "processMinting" {
		t.Fatalf("failed stage %s, want processMinting", result.FailedStage)
	}
	if result.ErrCode != model.ErrCodeReceiptNotFound {
		t.Fatalf("err code %s, want %s", result.ErrCode, model.ErrCodeReceiptNotFound)
	}
}

func TestRedeemAndUnstakeSingleFlight(t *testing.T) {
	ledgers := newFakeLedgers()
	ledgers.redeemingStarted = make(chan struct{})
	ledgers.redeemingRelease = make(chan struct{})

	redeemer := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	wf := NewRedeemAndUnstake(RedeemAndUnstakeDeps{
		Value:           ledgers,
		Utility:         ledgers,
		RedeemerAccount: redeemer,
	})
	runner := NewRunner(wf, notify.Nop{}, nil, nil, nil)

	intent := model.SettlementIntent{
		Workflow: model.WorkflowRedeemAndUnstake,
		Key:      common.HexToHash("0x111"),
		Redeemer: redeemer,
	}

	started := ledgers.redeemingStarted
	first := make(chan model.RunResult, 1)
	go func() {
		first <- runner.Run(context.Background(), intent)
	}()
	<-started

	second := runner.Run(context.Background(), model.SettlementIntent{
		Workflow: model.WorkflowRedeemAndUnstake,
		Key:      common.HexToHash("0x222"),
		Redeemer: redeemer,
	})
	if second.Status != model.RunBusy {
		t.Fatalf("concurrent run status %s, want %s", second.Status, model.RunBusy)
	}
	if second.ErrCode != model.ErrCodeBusy {
		t.Fatalf("concurrent run err code %s, want %s", second.ErrCode, model.ErrCodeBusy)
	}

	close(ledgers.redeemingRelease)
	if result := <-first; !result.Succeeded() {
		t.Fatalf("first run failed: %+v", result)
	}
}

func TestRegisterTokenUsesStageOneToken(t *testing.T) {
	ledgers := newFakeLedgers()
	wf := NewRegisterToken(RegisterTokenDeps{Value: ledgers, Utility: ledgers})
	runner := NewRunner(wf, notify.Nop{}, nil, nil, nil)

	intent := model.SettlementIntent{
		Workflow:               model.WorkflowRegisterToken,
		Key:                    tokenUUID,
		UUID:                   tokenUUID,
		Symbol:                 "ACME",
		TokenName:              "Acme Coin",
		ConversionRate:         big.NewInt(10),
		ConversionRateDecimals: 5,
		Requester:              otherAddr,
		Token:                  common.HexToAddress("0x000000000000000000000000000000000000cafe"),
	}

	result := runner.Run(context.Background(), intent)
	if !result.Succeeded() {
		t.Fatalf("run failed: %+v", result)
	}

	wantCalls := []string{"registerBrandedToken:ACME", "registerUtilityToken:ACME"}
	if got := ledgers.callSequence(); !reflect.DeepEqual(got, wantCalls) {
		t.Fatalf("call sequence %v, want %v", got, wantCalls)
	}
	if len(ledgers.utilityTokens) != 1 || ledgers.utilityTokens[0] != ledgers.registeredToken {
		t.Fatalf("value side registered %v, want stage-1 token %s",
			ledgers.utilityTokens, ledgers.registeredToken.Hex())
	}
}

func TestIntentFromEvent(t *testing.T) {
	ev := model.RawEvent{
		ID:   "0xaa-0",
		Name: model.EventStakingIntentConfirmed,
		Fields: map[string]interface{}{
			"_stakingIntentHash": intentHash,
			"_staker":            stakerAddr,
			"_beneficiary":       beneficiaryAddr,
			"_uuid":              tokenUUID,
		},
	}

	intent, err := IntentFromEvent(ev)
	if err != nil {
		t.Fatalf("intent from event: %v", err)
	}
	want := model.SettlementIntent{
		Workflow:    model.WorkflowStakeAndMint,
		Key:         intentHash,
		Staker:      stakerAddr,
		Beneficiary: beneficiaryAddr,
		UUID:        tokenUUID,
	}
	if !reflect.DeepEqual(intent, want) {
		t.Fatalf("intent %+v, want %+v", intent, want)
	}

	if _, err := IntentFromEvent(model.RawEvent{Name: "Transfer"}); err == nil {
		t.Fatalf("expected error for non-trigger event")
	}
}
