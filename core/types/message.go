package types

import (
	"fmt"

	"dytallix/codec"
)

// Message tags, fixed by spec.md §6. Values are part of the canonical wire
// format and must never be renumbered.
const (
	MessageTagTransfer        byte = 0x01
	MessageTagDelegate        byte = 0x10
	MessageTagUndelegate      byte = 0x11
	MessageTagClaimRewards    byte = 0x12
	MessageTagSubmitProposal  byte = 0x20
	MessageTagVote            byte = 0x21
	MessageTagDeposit         byte = 0x22
	MessageTagContractDeploy  byte = 0x30
	MessageTagContractCall    byte = 0x31
)

// Message is a single tagged operation carried by a Transaction. Native
// dispatch (package native) switches on Tag(); anything it does not
// recognize fails admission/execution with UnknownMessage.
type Message interface {
	Tag() byte
	Encode(w *codec.Writer)
}

// TransferMessage moves DGT or DRT from the signer to To.
type TransferMessage struct {
	To     [20]byte
	Denom  string // "DGT" | "DRT"
	Amount []byte // big-endian magnitude, interpreted as u128
}

func (m *TransferMessage) Tag() byte { return MessageTagTransfer }

func (m *TransferMessage) Encode(w *codec.Writer) {
	w.WriteBytes(m.To[:])
	w.WriteString(m.Denom)
	w.WriteBytes(m.Amount)
}

func decodeTransfer(r *codec.Reader) (*TransferMessage, error) {
	to, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(to) != 20 {
		return nil, fmt.Errorf("types: transfer.to must be 20 bytes, got %d", len(to))
	}
	denom, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	amount, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	m := &TransferMessage{Denom: denom, Amount: amount}
	copy(m.To[:], to)
	return m, nil
}

// DelegateMessage stakes Amount DGT to Validator.
type DelegateMessage struct {
	Validator [20]byte
	Amount    []byte
}

func (m *DelegateMessage) Tag() byte { return MessageTagDelegate }
func (m *DelegateMessage) Encode(w *codec.Writer) {
	w.WriteBytes(m.Validator[:])
	w.WriteBytes(m.Amount)
}

func decodeDelegate(r *codec.Reader) (*DelegateMessage, error) {
	val, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(val) != 20 {
		return nil, fmt.Errorf("types: delegate.validator must be 20 bytes, got %d", len(val))
	}
	amount, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	m := &DelegateMessage{Amount: amount}
	copy(m.Validator[:], val)
	return m, nil
}

// UndelegateMessage immediately unstakes Amount DGT from Validator (see
// DESIGN.md Open Question resolution: no unbonding delay in this build).
type UndelegateMessage struct {
	Validator [20]byte
	Amount    []byte
}

func (m *UndelegateMessage) Tag() byte { return MessageTagUndelegate }
func (m *UndelegateMessage) Encode(w *codec.Writer) {
	w.WriteBytes(m.Validator[:])
	w.WriteBytes(m.Amount)
}

func decodeUndelegate(r *codec.Reader) (*UndelegateMessage, error) {
	val, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(val) != 20 {
		return nil, fmt.Errorf("types: undelegate.validator must be 20 bytes, got %d", len(val))
	}
	amount, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	m := &UndelegateMessage{Amount: amount}
	copy(m.Validator[:], val)
	return m, nil
}

// ClaimRewardsMessage settles and pays out accrued DRT rewards for a
// delegation against Validator.
type ClaimRewardsMessage struct {
	Validator [20]byte
}

func (m *ClaimRewardsMessage) Tag() byte { return MessageTagClaimRewards }
func (m *ClaimRewardsMessage) Encode(w *codec.Writer) {
	w.WriteBytes(m.Validator[:])
}

func decodeClaimRewards(r *codec.Reader) (*ClaimRewardsMessage, error) {
	val, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(val) != 20 {
		return nil, fmt.Errorf("types: claim_rewards.validator must be 20 bytes, got %d", len(val))
	}
	m := &ClaimRewardsMessage{}
	copy(m.Validator[:], val)
	return m, nil
}

// SubmitProposalMessage opens a governance proposal changing Key to Value,
// funded by an initial Deposit.
type SubmitProposalMessage struct {
	Key     string
	Value   string
	Deposit []byte
}

func (m *SubmitProposalMessage) Tag() byte { return MessageTagSubmitProposal }
func (m *SubmitProposalMessage) Encode(w *codec.Writer) {
	w.WriteString(m.Key)
	w.WriteString(m.Value)
	w.WriteBytes(m.Deposit)
}

func decodeSubmitProposal(r *codec.Reader) (*SubmitProposalMessage, error) {
	key, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	value, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	deposit, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &SubmitProposalMessage{Key: key, Value: value, Deposit: deposit}, nil
}

// VoteMessage records a ballot on ProposalID. Choice is "yes" | "no" |
// "abstain" | "no_with_veto".
type VoteMessage struct {
	ProposalID uint64
	Choice     string
}

func (m *VoteMessage) Tag() byte { return MessageTagVote }
func (m *VoteMessage) Encode(w *codec.Writer) {
	w.WriteUint64(m.ProposalID)
	w.WriteString(m.Choice)
}

func decodeVote(r *codec.Reader) (*VoteMessage, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	choice, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &VoteMessage{ProposalID: id, Choice: choice}, nil
}

// DepositMessage adds Amount to an existing proposal's deposit.
type DepositMessage struct {
	ProposalID uint64
	Amount     []byte
}

func (m *DepositMessage) Tag() byte { return MessageTagDeposit }
func (m *DepositMessage) Encode(w *codec.Writer) {
	w.WriteUint64(m.ProposalID)
	w.WriteBytes(m.Amount)
}

func decodeDeposit(r *codec.Reader) (*DepositMessage, error) {
	id, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	amount, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &DepositMessage{ProposalID: id, Amount: amount}, nil
}

// ContractDeployMessage installs Code as a new contract and runs its
// constructor with Args.
type ContractDeployMessage struct {
	Code []byte
	Args []byte
}

func (m *ContractDeployMessage) Tag() byte { return MessageTagContractDeploy }
func (m *ContractDeployMessage) Encode(w *codec.Writer) {
	w.WriteBytes(m.Code)
	w.WriteBytes(m.Args)
}

func decodeContractDeploy(r *codec.Reader) (*ContractDeployMessage, error) {
	code, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	args, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &ContractDeployMessage{Code: code, Args: args}, nil
}

// ContractCallMessage invokes an already-deployed contract at To.
type ContractCallMessage struct {
	To   [20]byte
	Args []byte
}

func (m *ContractCallMessage) Tag() byte { return MessageTagContractCall }
func (m *ContractCallMessage) Encode(w *codec.Writer) {
	w.WriteBytes(m.To[:])
	w.WriteBytes(m.Args)
}

func decodeContractCall(r *codec.Reader) (*ContractCallMessage, error) {
	to, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(to) != 20 {
		return nil, fmt.Errorf("types: contract_call.to must be 20 bytes, got %d", len(to))
	}
	args, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	m := &ContractCallMessage{Args: args}
	copy(m.To[:], to)
	return m, nil
}

// ErrUnknownMessage is returned by DecodeMessage (and propagated by the
// native dispatcher) for a tag this build does not recognize.
type ErrUnknownMessage struct {
	Tag byte
}

func (e *ErrUnknownMessage) Error() string {
	return fmt.Sprintf("types: unknown message tag 0x%02x", e.Tag)
}

// DecodeMessage reads one tag byte followed by the tag's payload.
func DecodeMessage(r *codec.Reader) (Message, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case MessageTagTransfer:
		return decodeTransfer(r)
	case MessageTagDelegate:
		return decodeDelegate(r)
	case MessageTagUndelegate:
		return decodeUndelegate(r)
	case MessageTagClaimRewards:
		return decodeClaimRewards(r)
	case MessageTagSubmitProposal:
		return decodeSubmitProposal(r)
	case MessageTagVote:
		return decodeVote(r)
	case MessageTagDeposit:
		return decodeDeposit(r)
	case MessageTagContractDeploy:
		return decodeContractDeploy(r)
	case MessageTagContractCall:
		return decodeContractCall(r)
	default:
		return nil, &ErrUnknownMessage{Tag: tag}
	}
}

// EncodeMessage writes a message's tag byte followed by its payload.
func EncodeMessage(w *codec.Writer, m Message) {
	w.WriteUint8(m.Tag())
	m.Encode(w)
}
