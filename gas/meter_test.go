package gas

import (
	"math/big"
	"testing"
)

type fakeLedger struct {
	balances map[[20]byte]*big.Int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[[20]byte]*big.Int)}
}

func (f *fakeLedger) set(addr [20]byte, amount int64) {
	f.balances[addr] = big.NewInt(amount)
}

func (f *fakeLedger) balance(addr [20]byte) *big.Int {
	if b, ok := f.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (f *fakeLedger) DebitDGT(addr [20]byte, amount *big.Int) error {
	bal := f.balance(addr)
	if bal.Cmp(amount) < 0 {
		return ErrOutOfGas
	}
	f.balances[addr] = new(big.Int).Sub(bal, amount)
	return nil
}

func (f *fakeLedger) CreditDGT(addr [20]byte, amount *big.Int) error {
	f.balances[addr] = new(big.Int).Add(f.balance(addr), amount)
	return nil
}

func TestMeterChargeExhaustion(t *testing.T) {
	m := NewMeter(100)
	if err := m.Charge(40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Remaining() != 60 {
		t.Fatalf("unexpected remaining: %d", m.Remaining())
	}
	if err := m.Charge(70); err != ErrOutOfGas {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	if m.Remaining() != 0 {
		t.Fatalf("expected remaining to be zeroed on exhaustion, got %d", m.Remaining())
	}
	if m.Used() != m.Limit() {
		t.Fatalf("expected used == limit after exhaustion")
	}
}

func TestHoldAndSettleRefundsUnusedGas(t *testing.T) {
	var sender, proposer [20]byte
	sender[0] = 0x01
	proposer[0] = 0x02

	ledger := newFakeLedger()
	ledger.set(sender, 1000)

	gasPrice := big.NewInt(2)
	fee, err := Hold(ledger, sender, 100, gasPrice)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if fee.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected held fee: %s", fee)
	}
	if ledger.balance(sender).Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("unexpected sender balance after hold: %s", ledger.balance(sender))
	}

	meter := NewMeter(100)
	if err := meter.Charge(30); err != nil {
		t.Fatalf("charge: %v", err)
	}

	if err := Settle(ledger, sender, proposer, meter, gasPrice); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	// used=30*2=60 to proposer, unused=70*2=140 refunded to sender.
	if ledger.balance(sender).Cmp(big.NewInt(940)) != 0 {
		t.Fatalf("unexpected sender balance after settle: %s", ledger.balance(sender))
	}
	if ledger.balance(proposer).Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected proposer balance after settle: %s", ledger.balance(proposer))
	}
}

func TestSettleOnFullyExhaustedMeterKeepsAllFeeForProposer(t *testing.T) {
	var sender, proposer [20]byte
	sender[0] = 0x01
	proposer[0] = 0x02

	ledger := newFakeLedger()
	ledger.set(sender, 500)

	gasPrice := big.NewInt(1)
	if _, err := Hold(ledger, sender, 50, gasPrice); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	meter := NewMeter(50)
	if err := meter.Charge(50); err != nil {
		t.Fatalf("charge full limit: %v", err)
	}

	if err := Settle(ledger, sender, proposer, meter, gasPrice); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if ledger.balance(proposer).Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected proposer to receive full fee, got %s", ledger.balance(proposer))
	}
	if ledger.balance(sender).Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("expected no refund to sender, got %s", ledger.balance(sender))
	}
}

func TestMinFeeMatchesFeeForGas(t *testing.T) {
	got := MinFee(21000, big.NewInt(5))
	want := FeeForGas(21000, big.NewInt(5))
	if got.Cmp(want) != 0 {
		t.Fatalf("MinFee mismatch: got %s want %s", got, want)
	}
}
