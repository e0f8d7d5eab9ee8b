package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"larpx402/internal/aggregator"
	"larpx402/internal/domain"
	"larpx402/internal/imagegen"
	"larpx402/internal/launch"
	"larpx402/internal/solana"
	"larpx402/internal/threat"
	"larpx402/internal/wallet"
)

type launchFlags struct {
	keypair     string
	name        string
	symbol      string
	description string
	image       string
	imageURL    string
	threat      string
	twitter     string
	telegram    string
	website     string
	initialBuy  string
	claimants   []string
	record      bool
}

func newLaunchCmd(a *app) *cobra.Command {
	var lf launchFlags
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Run the full launch pipeline with a local keypair",
		Long: `Publish metadata, negotiate the fee split, authorize any fee setup
transactions and land the launch transaction, signing with a local keypair.

With --threat, empty name, symbol and description are filled from a catalog
threat ("random" picks one) and, when no image is given, artwork is generated
through the image gateway.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLaunch(cmd.Context(), a, &lf)
		},
	}
	f := cmd.Flags()
	f.StringVar(&lf.keypair, "keypair", "", "path to the creator keypair file (JSON byte array or base58)")
	f.StringVar(&lf.name, "name", "", "token name")
	f.StringVar(&lf.symbol, "symbol", "", "token symbol")
	f.StringVar(&lf.description, "description", "", "token description")
	f.StringVar(&lf.image, "image", "", "path to the token image")
	f.StringVar(&lf.imageURL, "image-url", "", "download the token image from this URL")
	f.StringVar(&lf.threat, "threat", "", `brand the token after a catalog threat, or "random"`)
	f.StringVar(&lf.twitter, "twitter", "", "twitter link")
	f.StringVar(&lf.telegram, "telegram", "", "telegram link")
	f.StringVar(&lf.website, "website", "", "website link")
	f.StringVar(&lf.initialBuy, "initial-buy", "0", "SOL to buy at launch")
	f.StringSliceVar(&lf.claimants, "claimant", nil, "fee claimant as identity:basisPoints (repeatable)")
	f.BoolVar(&lf.record, "record", true, "record the confirmed launch in the configured storage")
	_ = cmd.MarkFlagRequired("keypair")
	return cmd
}

func runLaunch(parent context.Context, a *app, lf *launchFlags) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg, logger := a.cfg, a.logger

	kp, err := wallet.LoadKeypairFile(lf.keypair)
	if err != nil {
		return err
	}

	var images *imagegen.Client
	if cfg.ImageGenURL != "" || lf.imageURL != "" {
		images = imagegen.NewClient(cfg.ImageGenURL, cfg.ImageGenAPIKey, imagegen.WithLogger(logger.Named("imagegen")))
	}

	req, err := buildLaunchRequest(ctx, lf, images, logger)
	if err != nil {
		return err
	}
	req.CreatorIdentity = kp.PublicKey().String()

	wsConfig := solana.DefaultWSConfig()
	wsConfig.Logger = logger.Named("ws")
	clients, err := solana.NewClients(ctx, cfg.Network, cfg.Endpoints(), &wsConfig)
	if err != nil {
		return err
	}
	defer clients.Close()

	opts := launch.Options{
		API:     aggregator.NewClient(cfg.AggregatorURL, cfg.AggregatorAPIKey, aggregator.WithLogger(logger.Named("aggregator"))),
		Wallet:  kp,
		Ledger:  clients.Ledger(cfg.ConfirmTimeout, logger.Named("ledger")),
		Network: cfg.Network,
		Logger:  logger,
		OnPhase: func(p launch.Phase) {
			logger.Info("phase", zap.Stringer("phase", p))
		},
	}
	if lf.record {
		stores, cleanup, err := createStores(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		opts.Store = stores.launches
	}

	res, err := launch.New(opts).Run(ctx, req)
	if err != nil {
		return err
	}
	if !res.Persisted && res.PersistErr != nil {
		logger.Warn("launch confirmed but not recorded", zap.Error(res.PersistErr))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// buildLaunchRequest assembles the request from flags, filling blanks from
// a threat when asked.
func buildLaunchRequest(ctx context.Context, lf *launchFlags, images *imagegen.Client, logger *zap.Logger) (domain.LaunchRequest, error) {
	req := domain.LaunchRequest{
		Name:        lf.name,
		Symbol:      lf.symbol,
		Description: lf.description,
		Socials: domain.SocialLinks{
			Twitter:  lf.twitter,
			Telegram: lf.telegram,
			Website:  lf.website,
		},
	}

	contribution, err := decimal.NewFromString(lf.initialBuy)
	if err != nil {
		return req, fmt.Errorf("invalid --initial-buy %q: %w", lf.initialBuy, err)
	}
	req.InitialContribution = contribution

	claimants, err := parseClaimants(lf.claimants)
	if err != nil {
		return req, err
	}
	req.FeeClaimants = claimants

	var t *threat.Threat
	if lf.threat != "" {
		picked, err := pickThreat(lf.threat)
		if err != nil {
			return req, err
		}
		t = &picked
		b := threat.Brand(picked)
		if req.Name == "" {
			req.Name = b.Name
		}
		if req.Symbol == "" {
			req.Symbol = b.Symbol
		}
		if req.Description == "" {
			req.Description = b.Description
		}
		logger.Info("branding from threat", zap.String("threat", picked.Name), zap.String("symbol", req.Symbol))
	}

	switch {
	case lf.image != "":
		data, err := os.ReadFile(lf.image)
		if err != nil {
			return req, fmt.Errorf("read image: %w", err)
		}
		req.Image = domain.ImageAsset{Data: data, MimeType: http.DetectContentType(data), Filename: filepath.Base(lf.image)}
	case lf.imageURL != "":
		img, err := images.FetchImage(ctx, lf.imageURL)
		if err != nil {
			return req, err
		}
		req.Image = *img
	case t != nil && images != nil:
		url, err := images.Generate(ctx, *t)
		if err != nil {
			return req, err
		}
		img, err := images.FetchImage(ctx, url)
		if err != nil {
			return req, err
		}
		req.Image = *img
	}
	return req, nil
}

func pickThreat(name string) (threat.Threat, error) {
	if strings.EqualFold(name, "random") {
		return threat.Sample(1)[0], nil
	}
	t, ok := threat.Lookup(name)
	if !ok {
		return threat.Threat{}, fmt.Errorf("unknown threat %q (see larpx threats)", name)
	}
	return t, nil
}

// parseClaimants reads identity:basisPoints pairs.
func parseClaimants(args []string) ([]domain.FeeClaimant, error) {
	out := make([]domain.FeeClaimant, 0, len(args))
	for _, arg := range args {
		i := strings.LastIndexByte(arg, ':')
		if i <= 0 || i == len(arg)-1 {
			return nil, fmt.Errorf("invalid --claimant %q: want identity:basisPoints", arg)
		}
		bps, err := strconv.Atoi(arg[i+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid --claimant %q: %w", arg, err)
		}
		out = append(out, domain.FeeClaimant{IdentityRef: strings.TrimSpace(arg[:i]), BasisPoints: bps})
	}
	return out, nil
}
