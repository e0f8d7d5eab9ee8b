package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"larpx402/internal/aggregator"
	"larpx402/internal/domain"
	"larpx402/internal/observability"
	"larpx402/internal/solana"
	"larpx402/internal/storage"
)

const persistTimeout = 10 * time.Second

// Pipeline runs launches against one aggregator, wallet and ledger.
// A Pipeline is safe for concurrent use if its collaborators are;
// each Run is an independent flow.
type Pipeline struct {
	api     API
	wallet  Wallet
	ledger  Ledger
	store   storage.LaunchStore
	network solana.Network
	logger  *zap.Logger
	onPhase PhaseObserver
	now     func() time.Time
	newID   func() string
}

// Options for creating Pipeline.
type Options struct {
	// Required collaborators
	API    API
	Wallet Wallet
	Ledger Ledger

	// Store records confirmed launches. Nil skips recording.
	Store   storage.LaunchStore
	Network solana.Network

	Logger  *zap.Logger
	OnPhase PhaseObserver

	// Test hooks
	Now   func() time.Time
	NewID func() string
}

// New creates a new Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		api:     opts.API,
		wallet:  opts.Wallet,
		ledger:  opts.Ledger,
		store:   opts.Store,
		network: opts.Network,
		logger:  opts.Logger,
		onPhase: opts.OnPhase,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.network == "" {
		p.network = solana.Mainnet
	}
	return p
}

// Result is a confirmed launch.
type Result struct {
	Record           domain.LaunchRecord   `json:"record"`
	Metadata         domain.MetadataRecord `json:"metadata"`
	ConfigKey        string                `json:"configKey"`
	ConfigSignatures []string              `json:"configSignatures,omitempty"` // confirmed fee-configuration transactions, in order

	// Persisted is false when the record could not be stored. The launch
	// itself is still confirmed on chain.
	Persisted    bool   `json:"persisted"`
	PersistErr   error  `json:"-"`
	PersistError string `json:"persistError,omitempty"` // PersistErr's message
}

// Run executes the full launch.
// Stages:
//  1. Validate the asset and fields
//  2. Publish metadata (reserves the mint)
//  3. Negotiate the fee split and authorize any setup transactions
//  4. Build, sign, submit and confirm the launch transaction, then record it
func (p *Pipeline) Run(ctx context.Context, req domain.LaunchRequest) (*Result, error) {
	start := p.now()

	res, err := p.run(ctx, req)
	if err != nil {
		p.fail(err)
		return nil, err
	}

	p.emit(Phase{Kind: PhaseSuccess})
	observability.RecordLaunch("success")
	p.logger.Info("launch confirmed",
		zap.String("mint", res.Record.TokenIdentity),
		zap.String("signature", res.Record.TransactionSignature),
		zap.Bool("persisted", res.Persisted),
		zap.Duration("elapsed", p.now().Sub(start)))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req domain.LaunchRequest) (*Result, error) {
	// Stage 1: local validation, no network access
	p.emit(Phase{Kind: PhaseValidatingAsset})
	payload, err := Prepare(req)
	if err != nil {
		return nil, err
	}
	if err := p.checkCollaborators(payload); err != nil {
		return nil, err
	}

	// Stage 2
	meta, err := p.Publish(ctx, payload)
	if err != nil {
		return nil, err
	}

	// Stage 3
	outcome, err := p.Negotiate(ctx, payload, meta)
	if err != nil {
		return nil, err
	}
	configSigs, err := p.AuthorizeConfig(ctx, outcome)
	if err != nil {
		return nil, err
	}

	// Stage 4
	res, err := p.Launch(ctx, payload, meta, outcome.ConfigKey())
	if err != nil {
		return nil, err
	}
	res.ConfigSignatures = configSigs
	return res, nil
}

// checkCollaborators fails fast on wiring problems before any network call.
func (p *Pipeline) checkCollaborators(payload *ValidatedPayload) error {
	if p.wallet == nil {
		return &Error{Kind: KindWalletUnavailable, Stage: StageValidate, Message: "no wallet connected"}
	}
	if got := p.wallet.PublicKey().String(); got != payload.Request.CreatorIdentity {
		return validationError(KindInvalidIdentity, "creatorIdentity",
			"creator %s does not match connected wallet %s", payload.Request.CreatorIdentity, got)
	}
	if p.api == nil {
		return &Error{Kind: KindUpstreamUnavailable, Stage: StageValidate, Message: "no aggregator configured"}
	}
	if p.ledger == nil {
		return &Error{Kind: KindLedgerSubmissionFailed, Stage: StageValidate, Message: "no ledger configured"}
	}
	return nil
}

// Publish uploads the bundle and returns the reserved mint and metadata URI.
func (p *Pipeline) Publish(ctx context.Context, payload *ValidatedPayload) (*domain.MetadataRecord, error) {
	p.emit(Phase{Kind: PhasePublishingMetadata})
	defer p.timeStage(StagePublish)()

	info, err := p.api.CreateTokenInfo(ctx, payload.Bundle)
	if err != nil {
		return nil, upstreamError(ctx, StagePublish, err)
	}

	meta := &domain.MetadataRecord{
		TokenIdentity:     info.TokenMint,
		MetadataReference: info.TokenMetadata,
		ResolvedImageURL:  info.ImageURL(),
	}
	p.logger.Debug("metadata published",
		zap.String("mint", meta.TokenIdentity),
		zap.String("metadata", meta.MetadataReference))
	return meta, nil
}

// Negotiate declares the fee split for meta's mint. The creator is listed
// first with whatever the claimants leave.
func (p *Pipeline) Negotiate(ctx context.Context, payload *ValidatedPayload, meta *domain.MetadataRecord) (FeeConfigOutcome, error) {
	p.emit(Phase{Kind: PhaseNegotiatingFees})
	defer p.timeStage(StageNegotiate)()

	creator := payload.Request.CreatorIdentity
	share, err := CreatorShare(payload.Request.FeeClaimants, creator)
	if err != nil {
		return nil, err
	}

	req := &aggregator.FeeShareRequest{
		Payer:       creator,
		BaseMint:    meta.TokenIdentity,
		Claimers:    []string{creator},
		BasisPoints: []int{share},
	}
	for _, c := range payload.Request.FeeClaimants {
		req.Claimers = append(req.Claimers, c.IdentityRef)
		req.BasisPoints = append(req.BasisPoints, c.BasisPoints)
	}

	cfg, err := p.api.CreateFeeShareConfig(ctx, req)
	if err != nil {
		return nil, upstreamError(ctx, StageNegotiate, err)
	}

	if !cfg.NeedsCreation {
		return DirectConfig{Key: cfg.ConfigKey}, nil
	}
	pending := make([]string, len(cfg.Transactions))
	copy(pending, cfg.Transactions)
	return SetupRequired{Key: cfg.ConfigKey, PendingTransactions: pending}, nil
}

// AuthorizeConfig signs, submits and confirms each pending configuration
// transaction strictly in order. Transaction n+1 is not decoded until n is
// confirmed. DirectConfig needs nothing.
func (p *Pipeline) AuthorizeConfig(ctx context.Context, outcome FeeConfigOutcome) ([]string, error) {
	setup, ok := outcome.(SetupRequired)
	if !ok {
		return nil, nil
	}
	defer p.timeStage(StageAuthorize)()

	total := len(setup.PendingTransactions)
	sigs := make([]string, 0, total)
	for i, encoded := range setup.PendingTransactions {
		p.emit(Phase{Kind: PhaseAuthorizingConfig, Step: i + 1, Total: total})

		sig, err := p.signAndLand(ctx, StageAuthorize, encoded, false)
		if err != nil {
			return nil, err
		}
		observability.RecordConfigTxConfirmed()
		p.logger.Debug("fee configuration confirmed",
			zap.Int("step", i+1),
			zap.Int("total", total),
			zap.String("signature", sig))
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// Launch builds the launch transaction for meta's mint, lands it and
// records the result.
func (p *Pipeline) Launch(ctx context.Context, payload *ValidatedPayload, meta *domain.MetadataRecord, configKey string) (*Result, error) {
	stop := p.timeStage(StageLaunch)

	encoded, err := p.BuildLaunchTransaction(ctx, payload, meta, configKey)
	if err != nil {
		stop()
		return nil, err
	}

	sig, err := p.signAndLand(ctx, StageLaunch, encoded, true)
	stop()
	if err != nil {
		return nil, err
	}

	p.emit(Phase{Kind: PhasePersisting})
	req := payload.Request
	res := &Result{
		Metadata:  *meta,
		ConfigKey: configKey,
		Record: domain.LaunchRecord{
			ID:                   p.newID(),
			TokenIdentity:        meta.TokenIdentity,
			TransactionSignature: sig,
			Name:                 req.Name,
			Symbol:               req.Symbol,
			Description:          req.Description,
			ImageURL:             meta.ResolvedImageURL,
			MetadataReference:    meta.MetadataReference,
			Socials:              req.Socials,
			CreatorIdentity:      req.CreatorIdentity,
			Network:              string(p.network),
			CreatedAt:            p.now().UnixMilli(),
		},
	}
	res.Persisted, res.PersistErr = p.persist(ctx, &res.Record)
	if res.PersistErr != nil {
		res.PersistError = res.PersistErr.Error()
	}
	return res, nil
}

// BuildLaunchTransaction asks the aggregator for the unsigned launch
// transaction of meta's mint, base58-encoded.
func (p *Pipeline) BuildLaunchTransaction(ctx context.Context, payload *ValidatedPayload, meta *domain.MetadataRecord, configKey string) (string, error) {
	p.emit(Phase{Kind: PhaseBuildingLaunchTx})

	encoded, err := p.api.CreateLaunchTransaction(ctx, &aggregator.LaunchTxRequest{
		MetadataURI:        meta.MetadataReference,
		TokenMint:          meta.TokenIdentity,
		Wallet:             payload.Request.CreatorIdentity,
		InitialBuyLamports: payload.InitialBuyLamports,
		ConfigKey:          configKey,
	})
	if err != nil {
		return "", upstreamError(ctx, StageLaunch, err)
	}
	return encoded, nil
}

// signAndLand decodes, signs, submits and confirms one transaction.
func (p *Pipeline) signAndLand(ctx context.Context, stage Stage, encoded string, reportPhases bool) (string, error) {
	tx, err := solana.DecodeTransaction(encoded, solana.EncodingBase58)
	if err != nil {
		return "", &Error{Kind: KindMalformedUpstreamResponse, Stage: stage, Err: err}
	}

	if reportPhases {
		p.emit(Phase{Kind: PhaseAwaitingSignature})
	}
	signed, err := p.sign(ctx, stage, tx)
	if err != nil {
		return "", err
	}

	if reportPhases {
		p.emit(Phase{Kind: PhaseSubmittingTx})
	}
	sig, err := p.ledger.Submit(ctx, signed)
	if err != nil {
		if ctx.Err() != nil {
			return "", contextError(stage, ctx.Err())
		}
		return "", &Error{Kind: KindLedgerSubmissionFailed, Stage: stage, Err: err}
	}

	if reportPhases {
		p.emit(Phase{Kind: PhaseConfirmingTx})
	}
	if err := p.ledger.Confirm(ctx, sig); err != nil {
		var failed *solana.TxFailedError
		switch {
		case errors.Is(err, solana.ErrConfirmationTimeout):
			return "", &Error{Kind: KindLedgerConfirmationTimeout, Stage: stage, Err: err}
		case errors.As(err, &failed):
			return "", &Error{Kind: KindLedgerSubmissionFailed, Stage: stage, Err: err}
		case ctx.Err() != nil:
			return "", contextError(stage, ctx.Err())
		default:
			return "", &Error{Kind: KindLedgerSubmissionFailed, Stage: stage, Err: err}
		}
	}
	return sig, nil
}

func (p *Pipeline) sign(ctx context.Context, stage Stage, tx *solanago.Transaction) (*solanago.Transaction, error) {
	signed, err := p.wallet.SignTransaction(ctx, tx)
	switch {
	case err == nil:
		return signed, nil
	case errors.Is(err, ErrUserRejected):
		return nil, &Error{Kind: KindUserRejectedSigning, Stage: stage, Err: err}
	case ctx.Err() != nil:
		return nil, contextError(stage, ctx.Err())
	default:
		return nil, &Error{Kind: KindWalletUnavailable, Stage: stage, Err: err}
	}
}

// persist records a confirmed launch. Failure is logged and counted but
// never fails the launch. It runs detached from ctx since the transaction
// has already landed.
func (p *Pipeline) persist(ctx context.Context, rec *domain.LaunchRecord) (bool, error) {
	if p.store == nil {
		return false, nil
	}
	defer p.timeStage(StagePersist)()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.store.Insert(ctx, rec); err != nil {
		observability.RecordPersistenceFailure()
		p.logger.Error("launch confirmed but not recorded",
			zap.String("mint", rec.TokenIdentity),
			zap.String("signature", rec.TransactionSignature),
			zap.Error(err))
		return false, &Error{Kind: KindPersistenceFailed, Stage: StagePersist, Err: err}
	}
	return true, nil
}

func (p *Pipeline) fail(err error) {
	p.emit(Phase{Kind: PhaseFailed, Err: err})

	stage, kind := "unknown", "canceled"
	var e *Error
	if errors.As(err, &e) {
		stage, kind = string(e.Stage), string(e.Kind)
	}
	observability.RecordLaunch("failed")
	observability.RecordLaunchFailure(stage, kind)

	log := p.logger.Warn
	if e != nil && e.Kind.IsValidation() {
		log = p.logger.Info
	}
	log("launch failed", zap.String("stage", stage), zap.String("kind", kind), zap.Error(err))
}

func (p *Pipeline) emit(ph Phase) {
	if p.onPhase != nil {
		p.onPhase(ph)
	}
}

func (p *Pipeline) timeStage(stage Stage) func() {
	start := time.Now()
	return func() {
		observability.RecordStage(string(stage), time.Since(start).Seconds())
	}
}

// upstreamError classifies an aggregator failure.
func upstreamError(ctx context.Context, stage Stage, err error) error {
	var apiErr *aggregator.APIError
	switch {
	case errors.As(err, &apiErr):
		return &Error{Kind: KindUpstreamRejected, Stage: stage, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	case errors.Is(err, aggregator.ErrMalformedResponse):
		return &Error{Kind: KindMalformedUpstreamResponse, Stage: stage, Err: err}
	case ctx.Err() != nil:
		return contextError(stage, ctx.Err())
	default:
		return &Error{Kind: KindUpstreamUnavailable, Stage: stage, Err: err}
	}
}

func contextError(stage Stage, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}
