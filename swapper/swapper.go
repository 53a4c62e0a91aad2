// Package swapper converts harvested tokens to native SOL through the
// Jupiter aggregator.
package swapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/egaotan/token-fee-harvester/backend"
	"github.com/egaotan/token-fee-harvester/jupiter"
	"github.com/egaotan/token-fee-harvester/program"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

type Step string

const (
	StepQuote  Step = "quote"
	StepBuild  Step = "build"
	StepDecode Step = "decode"
	StepSubmit Step = "submit"
)

// Error reports which step of the swap failed.
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("swap %s failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Aggregator is the part of the Jupiter client the swapper needs.
type Aggregator interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey, priorityFeeLamports uint64) ([]byte, error)
}

type Result struct {
	Signature solana.Signature
	AmountIn  uint64
	// AmountReceived is the quoted output in lamports. The executed amount
	// can be lower by up to the slippage tolerance.
	AmountReceived uint64
}

type Swapper struct {
	ledger      backend.Ledger
	aggregator  Aggregator
	priorityFee uint64
	logger      *zap.SugaredLogger
}

func NewSwapper(ledger backend.Ledger, aggregator Aggregator, priorityFeeLamports uint64, logger *zap.Logger) *Swapper {
	return &Swapper{
		ledger:      ledger,
		aggregator:  aggregator,
		priorityFee: priorityFeeLamports,
		logger:      logger.Named("swapper").Sugar(),
	}
}

func (s *Swapper) SwapToNative(ctx context.Context, mint solana.PublicKey, amount uint64, slippageBps uint16) (*Result, error) {
	if amount == 0 {
		return nil, &Error{Step: StepQuote, Err: errors.New("amount is zero")}
	}
	quote, err := s.aggregator.Quote(ctx, mint, program.SOL, amount, slippageBps)
	if err != nil {
		return nil, &Error{Step: StepQuote, Err: err}
	}
	if quote.OutAmount == 0 {
		return nil, &Error{Step: StepQuote, Err: errors.New("quote returns no output")}
	}
	s.logger.Infof("quote %d %s -> %d lamports, price impact %s%%, slippage %d bps",
		amount, mint, quote.OutAmount, quote.PriceImpactPct, slippageBps)

	raw, err := s.aggregator.SwapTransaction(ctx, quote, s.ledger.Payer(), s.priorityFee)
	if err != nil {
		return nil, &Error{Step: StepBuild, Err: err}
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, &Error{Step: StepDecode, Err: err}
	}
	if payer := tx.Message.AccountKeys; len(payer) == 0 || !payer[0].Equals(s.ledger.Payer()) {
		return nil, &Error{Step: StepDecode, Err: errors.New("transaction is not paid by the harvest authority")}
	}

	signature, err := s.ledger.SignAndConfirm(ctx, tx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, &Error{Step: StepSubmit, Err: err}
	}
	s.logger.Infof("swapped %d %s for about %d lamports: %s", amount, mint, quote.OutAmount, signature)
	return &Result{
		Signature:      signature,
		AmountIn:       amount,
		AmountReceived: quote.OutAmount,
	}, nil
}
