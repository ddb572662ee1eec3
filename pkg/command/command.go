// Package command defines the treasury agent's command vocabulary: the
// set of kinds a document cell can contain, their typed argument
// payloads, and the parse/format round trip between a cell's raw text
// and a structured Command.
//
// Kinds are a closed sum type. Every switch over Kind in this codebase
// is written exhaustively (no default case that silently swallows an
// unrecognized kind) so that adding a kind here is a prompt to handle
// it everywhere it matters.
package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one of the treasury agent's command verbs.
type Kind string

const (
	KindTransfer       Kind = "transfer"        // move a stablecoin/native asset to an address
	KindSwap           Kind = "swap"            // exchange one asset for another on-chain
	KindBridge         Kind = "bridge"          // move an asset across chains
	KindBalanceCheck   Kind = "balance_check"    // read a wallet balance
	KindPriceCheck     Kind = "price_check"      // read a market price
	KindSchedule       Kind = "schedule"         // define a recurring command
	KindCancelSchedule Kind = "cancel_schedule"  // disable a recurring command
	KindConditional    Kind = "conditional_order" // define a trigger-based order
	KindCancelOrder    Kind = "cancel_order"      // cancel a conditional order
	KindFaucetRequest  Kind = "faucet_request"    // request demo-mode test funds
	KindStateChannelOpen  Kind = "state_channel_open"
	KindStateChannelClose Kind = "state_channel_close"
	KindPayoutRule     Kind = "payout_rule"     // define a standing payout policy
	KindNotify         Kind = "notify"          // send an operator notification
	KindNoop           Kind = "noop"            // parsed but intentionally inert (comments, headers)

	KindSetup            Kind = "setup"             // create/seal the document's wallet credentials
	KindStatus           Kind = "status"             // read the document's overall setup/treasury status
	KindTreasury         Kind = "treasury"           // read a cross-asset balances summary
	KindAlertThreshold   Kind = "alert_threshold"    // define a balance/price alert
	KindAutoRebalance    Kind = "auto_rebalance"     // toggle automatic rebalancing
	KindRebalance        Kind = "rebalance"          // move an asset's balance toward a target amount
	KindContractCall     Kind = "contract_call"      // invoke a state-changing contract method
	KindContractRead     Kind = "contract_read"      // read a contract view method
	KindRotateKeys       Kind = "rotate_keys"        // reseal the document's credential bundle
	KindStopLoss         Kind = "stop_loss"          // sell trigger when price falls to or below a threshold
	KindTakeProfit       Kind = "take_profit"        // sell trigger when price rises to or above a threshold
	KindConnectedAppSign Kind = "connected_app_sign" // sign via a connected app's OAuth2 client-credentials flow
)

// AllKinds lists every recognized Kind. Keeping this list and the exhaustive switches below in sync is
// covered by command_test.go.
var AllKinds = []Kind{
	KindTransfer, KindSwap, KindBridge, KindBalanceCheck, KindPriceCheck,
	KindSchedule, KindCancelSchedule, KindConditional, KindCancelOrder,
	KindFaucetRequest, KindStateChannelOpen, KindStateChannelClose,
	KindPayoutRule, KindNotify, KindNoop,
	KindSetup, KindStatus, KindTreasury, KindAlertThreshold, KindAutoRebalance,
	KindRebalance, KindContractCall, KindContractRead, KindRotateKeys,
	KindStopLoss, KindTakeProfit, KindConnectedAppSign,
}

// Args is implemented by every per-kind argument struct.
type Args interface {
	Kind() Kind
}

type TransferArgs struct {
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount"`
	To     string  `json:"to"`
	Memo   string  `json:"memo,omitempty"`
}

func (TransferArgs) Kind() Kind { return KindTransfer }

type SwapArgs struct {
	FromAsset string  `json:"from_asset"`
	ToAsset   string  `json:"to_asset"`
	Amount    float64 `json:"amount"`
	MaxSlippageBps int `json:"max_slippage_bps,omitempty"`
}

func (SwapArgs) Kind() Kind { return KindSwap }

type BridgeArgs struct {
	Asset       string  `json:"asset"`
	Amount      float64 `json:"amount"`
	FromChain   string  `json:"from_chain"`
	ToChain     string  `json:"to_chain"`
	Destination string  `json:"destination"`
}

func (BridgeArgs) Kind() Kind { return KindBridge }

type BalanceCheckArgs struct {
	Asset   string `json:"asset"`
	Address string `json:"address,omitempty"`
}

func (BalanceCheckArgs) Kind() Kind { return KindBalanceCheck }

type PriceCheckArgs struct {
	Asset string `json:"asset"`
}

func (PriceCheckArgs) Kind() Kind { return KindPriceCheck }

type ScheduleArgs struct {
	InnerKind Kind            `json:"inner_kind"`
	InnerArgs json.RawMessage `json:"inner_args"`
	CronExpr  string          `json:"cron_expr,omitempty"`
	Every     string          `json:"every,omitempty"` // Go duration string, used when CronExpr is empty
}

func (ScheduleArgs) Kind() Kind { return KindSchedule }

type CancelScheduleArgs struct {
	ScheduleID string `json:"schedule_id"`
}

func (CancelScheduleArgs) Kind() Kind { return KindCancelSchedule }

type ConditionalArgs struct {
	InnerKind  Kind            `json:"inner_kind"`
	InnerArgs  json.RawMessage `json:"inner_args"`
	Asset      string          `json:"asset"`
	Comparator string          `json:"comparator"` // "gte" or "lte"
	Threshold  float64         `json:"threshold"`
}

func (ConditionalArgs) Kind() Kind { return KindConditional }

type CancelOrderArgs struct {
	OrderID string `json:"order_id"`
}

func (CancelOrderArgs) Kind() Kind { return KindCancelOrder }

type FaucetRequestArgs struct {
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount,omitempty"`
}

func (FaucetRequestArgs) Kind() Kind { return KindFaucetRequest }

type StateChannelOpenArgs struct {
	Counterparty string  `json:"counterparty"`
	Asset        string  `json:"asset"`
	Deposit      float64 `json:"deposit"`
}

func (StateChannelOpenArgs) Kind() Kind { return KindStateChannelOpen }

type StateChannelCloseArgs struct {
	ChannelID string `json:"channel_id"`
}

func (StateChannelCloseArgs) Kind() Kind { return KindStateChannelClose }

type PayoutRuleArgs struct {
	Asset     string  `json:"asset"`
	Recipient string  `json:"recipient"`
	Percent   float64 `json:"percent"`
	Trigger   string  `json:"trigger"` // e.g. "on_balance_above"
	Threshold float64 `json:"threshold,omitempty"`
}

func (PayoutRuleArgs) Kind() Kind { return KindPayoutRule }

type NotifyArgs struct {
	Message string `json:"message"`
}

func (NotifyArgs) Kind() Kind { return KindNotify }

type NoopArgs struct{}

func (NoopArgs) Kind() Kind { return KindNoop }

type SetupArgs struct{}

func (SetupArgs) Kind() Kind { return KindSetup }

type StatusArgs struct{}

func (StatusArgs) Kind() Kind { return KindStatus }

type TreasuryArgs struct{}

func (TreasuryArgs) Kind() Kind { return KindTreasury }

type AlertThresholdArgs struct {
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount"`
}

func (AlertThresholdArgs) Kind() Kind { return KindAlertThreshold }

type AutoRebalanceArgs struct {
	Enabled bool `json:"enabled"`
}

func (AutoRebalanceArgs) Kind() Kind { return KindAutoRebalance }

type RebalanceArgs struct {
	Asset        string  `json:"asset"`
	TargetAmount float64 `json:"target_amount"`
	SinkAddress  string  `json:"sink_address"`
}

func (RebalanceArgs) Kind() Kind { return KindRebalance }

type ContractCallArgs struct {
	Contract string   `json:"contract"`
	Method   string   `json:"method"`
	Args     []string `json:"args,omitempty"`
}

func (ContractCallArgs) Kind() Kind { return KindContractCall }

type ContractReadArgs struct {
	Contract string   `json:"contract"`
	Method   string   `json:"method"`
	Args     []string `json:"args,omitempty"`
}

func (ContractReadArgs) Kind() Kind { return KindContractRead }

type RotateKeysArgs struct{}

func (RotateKeysArgs) Kind() Kind { return KindRotateKeys }

// StopLossArgs and TakeProfitArgs are kept distinct from ConditionalArgs
// (spec §2/§6 names them as their own verbs): the executor registers
// each as a ConditionalOrder with a fixed comparator on creation rather
// than requiring the caller to spell out gte/lte themselves.
type StopLossArgs struct {
	Asset     string  `json:"asset"`
	Threshold float64 `json:"threshold"`
}

func (StopLossArgs) Kind() Kind { return KindStopLoss }

type TakeProfitArgs struct {
	Asset     string  `json:"asset"`
	Threshold float64 `json:"threshold"`
}

func (TakeProfitArgs) Kind() Kind { return KindTakeProfit }

// ConnectedAppSignArgs carries the raw OAuth2 client-credentials config
// for a connected-app signing request; the dispatcher decodes ConfigJSON
// itself (see Dispatcher.ConnectedAppSign).
type ConnectedAppSignArgs struct {
	ConfigJSON json.RawMessage `json:"config"`
}

func (ConnectedAppSignArgs) Kind() Kind { return KindConnectedAppSign }

// autoApproveDefault is the conservative fallback set of kinds that never
// require human approval: read-only operations, setup, demo-mode-gated
// test funding, and schedule/conditional-order management (spec §4.3:
// "status, price queries, balance queries, treasury, setup,
// schedule-management, conditional-order-management, alerts"). Overridable
// per document via DocConfig.AutoApprove.
var autoApproveDefault = map[Kind]bool{
	KindBalanceCheck:   true,
	KindPriceCheck:     true,
	KindFaucetRequest:  true,
	KindNoop:           true,
	KindStatus:         true,
	KindTreasury:       true,
	KindSetup:          true,
	KindSchedule:       true,
	KindCancelSchedule: true,
	KindConditional:    true,
	KindCancelOrder:    true,
	KindStopLoss:       true,
	KindTakeProfit:     true,
	KindAlertThreshold: true,
}

// IsAutoApproved reports whether kind skips the approval gate under the
// given per-document override list (document-level list always wins).
func IsAutoApproved(kind Kind, docOverrides []string) bool {
	if docOverrides != nil {
		for _, k := range docOverrides {
			if Kind(k) == kind {
				return true
			}
		}
		return false
	}
	return autoApproveDefault[kind]
}

// Parse decodes a Kind and its raw JSON args into a typed Args value.
// The exhaustive switch is the single place new kinds must be wired in.
func Parse(kind Kind, raw json.RawMessage) (Args, error) {
	var args Args
	switch kind {
	case KindTransfer:
		args = &TransferArgs{}
	case KindSwap:
		args = &SwapArgs{}
	case KindBridge:
		args = &BridgeArgs{}
	case KindBalanceCheck:
		args = &BalanceCheckArgs{}
	case KindPriceCheck:
		args = &PriceCheckArgs{}
	case KindSchedule:
		args = &ScheduleArgs{}
	case KindCancelSchedule:
		args = &CancelScheduleArgs{}
	case KindConditional:
		args = &ConditionalArgs{}
	case KindCancelOrder:
		args = &CancelOrderArgs{}
	case KindFaucetRequest:
		args = &FaucetRequestArgs{}
	case KindStateChannelOpen:
		args = &StateChannelOpenArgs{}
	case KindStateChannelClose:
		args = &StateChannelCloseArgs{}
	case KindPayoutRule:
		args = &PayoutRuleArgs{}
	case KindNotify:
		args = &NotifyArgs{}
	case KindNoop:
		args = &NoopArgs{}
	case KindSetup:
		args = &SetupArgs{}
	case KindStatus:
		args = &StatusArgs{}
	case KindTreasury:
		args = &TreasuryArgs{}
	case KindAlertThreshold:
		args = &AlertThresholdArgs{}
	case KindAutoRebalance:
		args = &AutoRebalanceArgs{}
	case KindRebalance:
		args = &RebalanceArgs{}
	case KindContractCall:
		args = &ContractCallArgs{}
	case KindContractRead:
		args = &ContractReadArgs{}
	case KindRotateKeys:
		args = &RotateKeysArgs{}
	case KindStopLoss:
		args = &StopLossArgs{}
	case KindTakeProfit:
		args = &TakeProfitArgs{}
	case KindConnectedAppSign:
		args = &ConnectedAppSignArgs{}
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, fmt.Errorf("decode %s args: %w", kind, err)
	}
	return args, nil
}

// dwPrefix is the canonical command surface's verb prefix (spec §4.3/§6).
const dwPrefix = "DW"

// Format renders args back to the document cell's canonical "DW <VERB>
// ..." surface (spec §6). Round-tripping Format(ParseCanonical(s)) must
// reproduce s exactly for any s already in canonical form (spec §8).
func Format(kind Kind, args Args) (string, error) {
	switch a := args.(type) {
	case *TransferArgs:
		memo := ""
		if a.Memo != "" {
			memo = " MEMO " + a.Memo
		}
		return fmt.Sprintf("%s TRANSFER %g %s TO %s%s", dwPrefix, a.Amount, a.Asset, a.To, memo), nil
	case *SwapArgs:
		return fmt.Sprintf("%s SWAP %g %s FOR %s", dwPrefix, a.Amount, a.FromAsset, a.ToAsset), nil
	case *BridgeArgs:
		return fmt.Sprintf("%s BRIDGE %g %s FROM %s TO %s DEST %s", dwPrefix, a.Amount, a.Asset, a.FromChain, a.ToChain, a.Destination), nil
	case *BalanceCheckArgs:
		return fmt.Sprintf("%s BALANCE %s", dwPrefix, a.Asset), nil
	case *PriceCheckArgs:
		return fmt.Sprintf("%s PRICE %s", dwPrefix, a.Asset), nil
	case *FaucetRequestArgs:
		return fmt.Sprintf("%s FAUCET %s", dwPrefix, a.Asset), nil
	case *ScheduleArgs:
		inner, err := formatInner(a.InnerKind, a.InnerArgs)
		if err != nil {
			return "", fmt.Errorf("format schedule inner command: %w", err)
		}
		if a.CronExpr != "" {
			return fmt.Sprintf("%s SCHEDULE CRON %s: %s", dwPrefix, a.CronExpr, inner), nil
		}
		return fmt.Sprintf("%s SCHEDULE EVERY %s: %s", dwPrefix, a.Every, inner), nil
	case *CancelScheduleArgs:
		return fmt.Sprintf("%s CANCEL_SCHEDULE %s", dwPrefix, a.ScheduleID), nil
	case *ConditionalArgs:
		inner, err := formatInner(a.InnerKind, a.InnerArgs)
		if err != nil {
			return "", fmt.Errorf("format conditional inner command: %w", err)
		}
		return fmt.Sprintf("%s CONDITIONAL %s %s %g: %s", dwPrefix, a.Asset, a.Comparator, a.Threshold, inner), nil
	case *CancelOrderArgs:
		return fmt.Sprintf("%s CANCEL_ORDER %s", dwPrefix, a.OrderID), nil
	case *StateChannelOpenArgs:
		return fmt.Sprintf("%s CHANNEL_OPEN %s %s %g", dwPrefix, a.Counterparty, a.Asset, a.Deposit), nil
	case *StateChannelCloseArgs:
		return fmt.Sprintf("%s CHANNEL_CLOSE %s", dwPrefix, a.ChannelID), nil
	case *PayoutRuleArgs:
		return fmt.Sprintf("%s PAYOUT %g %s TO %s WHEN %s %g", dwPrefix, a.Percent, a.Asset, a.Recipient, a.Trigger, a.Threshold), nil
	case *NotifyArgs:
		return fmt.Sprintf("%s NOTIFY %s", dwPrefix, a.Message), nil
	case *NoopArgs:
		return "", nil
	case *SetupArgs:
		return fmt.Sprintf("%s SETUP", dwPrefix), nil
	case *StatusArgs:
		return fmt.Sprintf("%s STATUS", dwPrefix), nil
	case *TreasuryArgs:
		return fmt.Sprintf("%s TREASURY", dwPrefix), nil
	case *AlertThresholdArgs:
		return fmt.Sprintf("%s ALERT_THRESHOLD %s %g", dwPrefix, a.Asset, a.Amount), nil
	case *AutoRebalanceArgs:
		state := "OFF"
		if a.Enabled {
			state = "ON"
		}
		return fmt.Sprintf("%s AUTO_REBALANCE %s", dwPrefix, state), nil
	case *RebalanceArgs:
		return fmt.Sprintf("%s REBALANCE %s %g %s", dwPrefix, a.Asset, a.TargetAmount, a.SinkAddress), nil
	case *ContractCallArgs:
		return strings.TrimSpace(fmt.Sprintf("%s CONTRACT_CALL %s %s %s", dwPrefix, a.Contract, a.Method, strings.Join(a.Args, " "))), nil
	case *ContractReadArgs:
		return strings.TrimSpace(fmt.Sprintf("%s CONTRACT_READ %s %s %s", dwPrefix, a.Contract, a.Method, strings.Join(a.Args, " "))), nil
	case *RotateKeysArgs:
		return fmt.Sprintf("%s ROTATE_KEYS", dwPrefix), nil
	case *StopLossArgs:
		return fmt.Sprintf("%s STOP_LOSS %s %g", dwPrefix, a.Asset, a.Threshold), nil
	case *TakeProfitArgs:
		return fmt.Sprintf("%s TAKE_PROFIT %s %g", dwPrefix, a.Asset, a.Threshold), nil
	case *ConnectedAppSignArgs:
		return fmt.Sprintf("%s CONNECTED_APP_SIGN %s", dwPrefix, string(a.ConfigJSON)), nil
	default:
		return "", fmt.Errorf("unknown args type %T", args)
	}
}

// formatInner renders a nested Schedule/Conditional inner command back to
// its own canonical form, stripping the outer "DW " prefix since the
// caller re-attaches it as part of the enclosing verb's grammar.
func formatInner(kind Kind, raw json.RawMessage) (string, error) {
	args, err := Parse(kind, raw)
	if err != nil {
		return "", err
	}
	text, err := Format(kind, args)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(text, dwPrefix+" "), nil
}

// TryAutoDetect parses a raw document cell's text into a Kind and Args.
// It returns (KindNoop, NoopArgs{}, false) for text that doesn't match
// any known command shape, so callers can distinguish "parsed as noop"
// from "not a command at all" via the bool.
func TryAutoDetect(text string) (Kind, Args, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "#") {
		return KindNoop, NoopArgs{}, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return KindNoop, NoopArgs{}, false
	}
	verb := strings.ToLower(fields[0])

	switch verb {
	case "transfer", "send", "pay":
		if len(fields) >= 4 && strings.EqualFold(fields[3], "to") && len(fields) >= 5 {
			amount, err := strconv.ParseFloat(fields[1], 64)
			if err == nil {
				return KindTransfer, &TransferArgs{Amount: amount, Asset: fields[2], To: fields[4]}, true
			}
		}
	case "swap":
		// swap <amount> <fromAsset> for <toAsset>
		if len(fields) >= 5 && strings.EqualFold(fields[3], "for") {
			amount, err := strconv.ParseFloat(fields[1], 64)
			if err == nil {
				return KindSwap, &SwapArgs{Amount: amount, FromAsset: fields[2], ToAsset: fields[4]}, true
			}
		}
	case "balance":
		if len(fields) >= 2 {
			return KindBalanceCheck, &BalanceCheckArgs{Asset: fields[1]}, true
		}
	case "price":
		if len(fields) >= 2 {
			return KindPriceCheck, &PriceCheckArgs{Asset: fields[1]}, true
		}
	case "faucet":
		if len(fields) >= 2 {
			return KindFaucetRequest, &FaucetRequestArgs{Asset: fields[1]}, true
		}
	case "cancel":
		if len(fields) >= 3 && strings.EqualFold(fields[1], "schedule") {
			return KindCancelSchedule, &CancelScheduleArgs{ScheduleID: fields[2]}, true
		}
		if len(fields) >= 3 && strings.EqualFold(fields[1], "order") {
			return KindCancelOrder, &CancelOrderArgs{OrderID: fields[2]}, true
		}
	case "notify":
		if len(fields) >= 2 {
			return KindNotify, &NotifyArgs{Message: strings.Join(fields[1:], " ")}, true
		}
	}
	return KindNoop, NoopArgs{}, false
}

func parseCanonicalTransfer(rest string, restFields []string) (Kind, Args, bool, error) {
	if len(restFields) >= 4 && strings.EqualFold(restFields[2], "TO") {
		amount, err := strconv.ParseFloat(restFields[0], 64)
		if err != nil {
			return KindNoop, nil, false, fmt.Errorf("canonical TRANSFER: bad amount %q", restFields[0])
		}
		args := &TransferArgs{Amount: amount, Asset: restFields[1], To: restFields[3]}
		if len(restFields) >= 6 && strings.EqualFold(restFields[4], "MEMO") {
			args.Memo = strings.Join(restFields[5:], " ")
		}
		return KindTransfer, args, true, nil
	}
	return KindNoop, nil, false, fmt.Errorf("canonical TRANSFER: want <amount> <asset> TO <addr> [MEMO <text>], got %q", rest)
}

func parseCanonicalSchedule(rest string) (Kind, Args, bool, error) {
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return KindNoop, nil, false, fmt.Errorf("canonical SCHEDULE: missing ':' before inner command, got %q", rest)
	}
	head := strings.Fields(rest[:idx])
	inner := strings.TrimSpace(rest[idx+1:])
	innerKind, innerArgs, ok, err := ParseText(inner)
	if err != nil {
		return KindNoop, nil, false, fmt.Errorf("canonical SCHEDULE: inner command: %w", err)
	}
	if !ok {
		return KindNoop, nil, false, fmt.Errorf("canonical SCHEDULE: inner command did not parse: %q", inner)
	}
	innerRaw, err := json.Marshal(innerArgs)
	if err != nil {
		return KindNoop, nil, false, fmt.Errorf("canonical SCHEDULE: marshal inner args: %w", err)
	}
	args := &ScheduleArgs{InnerKind: innerKind, InnerArgs: innerRaw}
	switch {
	case len(head) >= 2 && strings.EqualFold(head[0], "EVERY"):
		args.Every = head[1]
	case len(head) >= 2 && strings.EqualFold(head[0], "CRON"):
		args.CronExpr = strings.Join(head[1:], " ")
	default:
		return KindNoop, nil, false, fmt.Errorf("canonical SCHEDULE: want EVERY <dur> or CRON <expr> before ':', got %q", rest[:idx])
	}
	return KindSchedule, args, true, nil
}

func parseCanonicalConditional(rest string) (Kind, Args, bool, error) {
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return KindNoop, nil, false, fmt.Errorf("canonical CONDITIONAL: missing ':' before inner command, got %q", rest)
	}
	head := strings.Fields(rest[:idx])
	inner := strings.TrimSpace(rest[idx+1:])
	if len(head) < 3 {
		return KindNoop, nil, false, fmt.Errorf("canonical CONDITIONAL: want <asset> <gte|lte> <threshold>: <inner>, got %q", rest)
	}
	threshold, err := strconv.ParseFloat(head[2], 64)
	if err != nil {
		return KindNoop, nil, false, fmt.Errorf("canonical CONDITIONAL: bad threshold %q", head[2])
	}
	innerKind, innerArgs, ok, err := ParseText(inner)
	if err != nil {
		return KindNoop, nil, false, fmt.Errorf("canonical CONDITIONAL: inner command: %w", err)
	}
	if !ok {
		return KindNoop, nil, false, fmt.Errorf("canonical CONDITIONAL: inner command did not parse: %q", inner)
	}
	innerRaw, err := json.Marshal(innerArgs)
	if err != nil {
		return KindNoop, nil, false, fmt.Errorf("canonical CONDITIONAL: marshal inner args: %w", err)
	}
	return KindConditional, &ConditionalArgs{InnerKind: innerKind, InnerArgs: innerRaw, Asset: head[0], Comparator: strings.ToLower(head[1]), Threshold: threshold}, true, nil
}

// ParseCanonical parses the explicit "DW <VERB> <args…>" surface (spec
// §4.3/§6). ok is false and err is nil when text does not start with the
// canonical prefix at all (callers should fall back to TryAutoDetect); err
// is non-nil when the prefix is present but the verb is unrecognized or
// its arguments are malformed, so the caller can surface a parse error
// instead of silently treating the row as "not a command".
func ParseCanonical(text string) (Kind, Args, bool, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], dwPrefix) {
		return KindNoop, NoopArgs{}, false, nil
	}
	if len(fields) < 2 {
		return KindNoop, nil, false, fmt.Errorf("canonical command missing verb: %q", text)
	}
	verb := strings.ToUpper(fields[1])
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text[len(fields[0]):]), fields[1]))
	restFields := strings.Fields(rest)

	switch verb {
	case "TRANSFER", "SEND":
		return parseCanonicalTransfer(rest, restFields)
	case "SWAP":
		if len(restFields) >= 4 && strings.EqualFold(restFields[2], "FOR") {
			amount, err := strconv.ParseFloat(restFields[0], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical SWAP: bad amount %q", restFields[0])
			}
			return KindSwap, &SwapArgs{Amount: amount, FromAsset: restFields[1], ToAsset: restFields[3]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical SWAP: want <amount> <asset> FOR <asset>, got %q", rest)
	case "BRIDGE":
		if len(restFields) >= 7 && strings.EqualFold(restFields[2], "FROM") && strings.EqualFold(restFields[4], "TO") && strings.EqualFold(restFields[6], "DEST") && len(restFields) >= 8 {
			amount, err := strconv.ParseFloat(restFields[0], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical BRIDGE: bad amount %q", restFields[0])
			}
			return KindBridge, &BridgeArgs{Amount: amount, Asset: restFields[1], FromChain: restFields[3], ToChain: restFields[5], Destination: restFields[7]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical BRIDGE: want <amount> <asset> FROM <chain> TO <chain> DEST <addr>, got %q", rest)
	case "BALANCE":
		if len(restFields) >= 1 {
			return KindBalanceCheck, &BalanceCheckArgs{Asset: restFields[0]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical BALANCE: missing asset")
	case "PRICE":
		if len(restFields) >= 1 {
			return KindPriceCheck, &PriceCheckArgs{Asset: restFields[0]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical PRICE: missing asset")
	case "SCHEDULE":
		return parseCanonicalSchedule(rest)
	case "CONDITIONAL":
		return parseCanonicalConditional(rest)
	case "FAUCET":
		if len(restFields) >= 1 {
			return KindFaucetRequest, &FaucetRequestArgs{Asset: restFields[0]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical FAUCET: missing asset")
	case "CANCEL_SCHEDULE":
		if len(restFields) >= 1 {
			return KindCancelSchedule, &CancelScheduleArgs{ScheduleID: restFields[0]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical CANCEL_SCHEDULE: missing schedule id")
	case "CANCEL_ORDER":
		if len(restFields) >= 1 {
			return KindCancelOrder, &CancelOrderArgs{OrderID: restFields[0]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical CANCEL_ORDER: missing order id")
	case "CHANNEL_OPEN":
		if len(restFields) >= 3 {
			deposit, err := strconv.ParseFloat(restFields[2], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical CHANNEL_OPEN: bad deposit %q", restFields[2])
			}
			return KindStateChannelOpen, &StateChannelOpenArgs{Counterparty: restFields[0], Asset: restFields[1], Deposit: deposit}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical CHANNEL_OPEN: want <counterparty> <asset> <deposit>, got %q", rest)
	case "CHANNEL_CLOSE":
		if len(restFields) >= 1 {
			return KindStateChannelClose, &StateChannelCloseArgs{ChannelID: restFields[0]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical CHANNEL_CLOSE: missing channel id")
	case "PAYOUT":
		if len(restFields) >= 6 && strings.EqualFold(restFields[2], "TO") && strings.EqualFold(restFields[4], "WHEN") {
			percent, err := strconv.ParseFloat(restFields[0], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical PAYOUT: bad percent %q", restFields[0])
			}
			threshold := 0.0
			if len(restFields) >= 7 {
				threshold, _ = strconv.ParseFloat(restFields[6], 64)
			}
			return KindPayoutRule, &PayoutRuleArgs{Percent: percent, Asset: restFields[1], Recipient: restFields[3], Trigger: restFields[5], Threshold: threshold}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical PAYOUT: want <percent> <asset> TO <recipient> WHEN <trigger> <threshold>, got %q", rest)
	case "NOTIFY":
		if rest != "" {
			return KindNotify, &NotifyArgs{Message: rest}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical NOTIFY: missing message")
	case "SETUP":
		return KindSetup, &SetupArgs{}, true, nil
	case "STATUS":
		return KindStatus, &StatusArgs{}, true, nil
	case "TREASURY":
		return KindTreasury, &TreasuryArgs{}, true, nil
	case "ALERT_THRESHOLD":
		if len(restFields) >= 2 {
			amount, err := strconv.ParseFloat(restFields[1], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical ALERT_THRESHOLD: bad amount %q", restFields[1])
			}
			return KindAlertThreshold, &AlertThresholdArgs{Asset: restFields[0], Amount: amount}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical ALERT_THRESHOLD: want <asset> <amount>, got %q", rest)
	case "AUTO_REBALANCE":
		if len(restFields) >= 1 && (strings.EqualFold(restFields[0], "ON") || strings.EqualFold(restFields[0], "OFF")) {
			return KindAutoRebalance, &AutoRebalanceArgs{Enabled: strings.EqualFold(restFields[0], "ON")}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical AUTO_REBALANCE: want ON|OFF, got %q", rest)
	case "REBALANCE":
		if len(restFields) >= 3 {
			target, err := strconv.ParseFloat(restFields[1], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical REBALANCE: bad target %q", restFields[1])
			}
			return KindRebalance, &RebalanceArgs{Asset: restFields[0], TargetAmount: target, SinkAddress: restFields[2]}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical REBALANCE: want <asset> <target_amount> <sink_address>, got %q", rest)
	case "CONTRACT_CALL", "CONTRACT_READ":
		if len(restFields) >= 2 {
			k := KindContractCall
			if verb == "CONTRACT_READ" {
				k = KindContractRead
			}
			callArgs := restFields[2:]
			if k == KindContractCall {
				return k, &ContractCallArgs{Contract: restFields[0], Method: restFields[1], Args: callArgs}, true, nil
			}
			return k, &ContractReadArgs{Contract: restFields[0], Method: restFields[1], Args: callArgs}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical %s: want <contract> <method> [args...], got %q", verb, rest)
	case "ROTATE_KEYS":
		return KindRotateKeys, &RotateKeysArgs{}, true, nil
	case "STOP_LOSS", "TAKE_PROFIT":
		if len(restFields) >= 2 {
			threshold, err := strconv.ParseFloat(restFields[1], 64)
			if err != nil {
				return KindNoop, nil, false, fmt.Errorf("canonical %s: bad threshold %q", verb, restFields[1])
			}
			if verb == "STOP_LOSS" {
				return KindStopLoss, &StopLossArgs{Asset: restFields[0], Threshold: threshold}, true, nil
			}
			return KindTakeProfit, &TakeProfitArgs{Asset: restFields[0], Threshold: threshold}, true, nil
		}
		return KindNoop, nil, false, fmt.Errorf("canonical %s: want <asset> <threshold>, got %q", verb, rest)
	case "CONNECTED_APP_SIGN":
		if rest == "" {
			return KindNoop, nil, false, fmt.Errorf("canonical CONNECTED_APP_SIGN: missing config")
		}
		return KindConnectedAppSign, &ConnectedAppSignArgs{ConfigJSON: json.RawMessage(rest)}, true, nil
	}
	return KindNoop, nil, false, fmt.Errorf("canonical command: unrecognized verb %q", verb)
}

// ParseText is the single entry point callers use to turn raw document
// cell or chat text into a Kind/Args: it prefers the canonical "DW
// <VERB> ..." grammar and falls back to best-effort auto-detect (spec
// §4.3). err is non-nil only when text used the canonical prefix but was
// malformed, letting callers distinguish a real parse error from text
// that simply isn't a command at all (ok false, err nil).
func ParseText(text string) (Kind, Args, bool, error) {
	if kind, args, ok, err := ParseCanonical(text); ok || err != nil {
		return kind, args, ok, err
	}
	kind, args, ok := TryAutoDetect(text)
	return kind, args, ok, nil
}
