// Package launch orchestrates a token launch: validate the asset, publish
// metadata, negotiate the fee split, then build, sign, submit, confirm and
// record the launch transaction.
package launch

import (
	"net/url"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"larpx402/internal/aggregator"
	"larpx402/internal/domain"
	"larpx402/internal/solana"
)

const (
	MaxImageBytes     = 5 << 20
	MaxNameLen        = 32
	MaxSymbolLen      = 10
	MaxDescriptionLen = 500

	lamportsPerSOLExp = 9
)

// MaxInitialContribution is the largest initial buy in SOL.
var MaxInitialContribution = decimal.NewFromInt(10)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ValidatedPayload is the output of Prepare: a normalized request plus the
// multipart bundle for the metadata publisher.
type ValidatedPayload struct {
	Request            domain.LaunchRequest
	Bundle             *aggregator.TokenInfoRequest
	InitialBuyLamports uint64
	CreatorShare       int // basis points left to the creator
}

// NormalizeSymbol strips leading '$' and whitespace and uppercases.
// NormalizeSymbol(NormalizeSymbol(s)) == NormalizeSymbol(s).
func NormalizeSymbol(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return r == '$' || unicode.IsSpace(r)
	})
	return strings.ToUpper(strings.TrimRightFunc(s, unicode.IsSpace))
}

// Prepare validates req and builds the publish bundle. It is pure: no I/O.
func Prepare(req domain.LaunchRequest) (*ValidatedPayload, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = NormalizeSymbol(req.Symbol)
	req.Description = strings.TrimSpace(req.Description)
	req.CreatorIdentity = strings.TrimSpace(req.CreatorIdentity)

	if err := checkImage(req.Image); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"name", req.Name, MaxNameLen},
		{"symbol", req.Symbol, MaxSymbolLen},
		{"description", req.Description, MaxDescriptionLen},
	} {
		n := utf8.RuneCountInString(f.value)
		if n == 0 {
			return nil, validationError(KindMissingField, f.name, "%s is required", f.name)
		}
		if n > f.max {
			return nil, validationError(KindFieldTooLong, f.name, "%s is %d characters, max %d", f.name, n, f.max)
		}
	}

	if req.CreatorIdentity == "" {
		return nil, validationError(KindMissingField, "creatorIdentity", "creator identity is required")
	}
	if err := solana.ValidatePublicKey(req.CreatorIdentity); err != nil {
		e := validationError(KindInvalidIdentity, "creatorIdentity", "%v", err)
		e.Err = err
		return nil, e
	}

	socials, err := CheckSocials(req.Socials)
	if err != nil {
		return nil, err
	}
	req.Socials = socials

	lamports, err := contributionLamports(req.InitialContribution)
	if err != nil {
		return nil, err
	}

	creatorShare, err := CreatorShare(req.FeeClaimants, req.CreatorIdentity)
	if err != nil {
		return nil, err
	}

	return &ValidatedPayload{
		Request:            req,
		Bundle:             buildBundle(req),
		InitialBuyLamports: lamports,
		CreatorShare:       creatorShare,
	}, nil
}

// PrepareTransaction validates only what fee negotiation and launch
// transaction building need. It serves browser flows where metadata was
// published in an earlier request; the returned payload has no Bundle.
func PrepareTransaction(creator string, claimants []domain.FeeClaimant, contribution decimal.Decimal) (*ValidatedPayload, error) {
	req := domain.LaunchRequest{
		CreatorIdentity:     strings.TrimSpace(creator),
		FeeClaimants:        claimants,
		InitialContribution: contribution,
	}
	if req.CreatorIdentity == "" {
		return nil, validationError(KindMissingField, "creatorIdentity", "creator identity is required")
	}
	if err := solana.ValidatePublicKey(req.CreatorIdentity); err != nil {
		e := validationError(KindInvalidIdentity, "creatorIdentity", "%v", err)
		e.Err = err
		return nil, e
	}
	lamports, err := contributionLamports(req.InitialContribution)
	if err != nil {
		return nil, err
	}
	share, err := CreatorShare(req.FeeClaimants, req.CreatorIdentity)
	if err != nil {
		return nil, err
	}
	return &ValidatedPayload{Request: req, InitialBuyLamports: lamports, CreatorShare: share}, nil
}

func checkImage(img domain.ImageAsset) error {
	if len(img.Data) == 0 {
		return validationError(KindInvalidImage, "image", "image is required")
	}
	if len(img.Data) > MaxImageBytes {
		return validationError(KindPayloadTooLarge, "image", "image is %d bytes, max %d", len(img.Data), MaxImageBytes)
	}
	if _, ok := imageExtensions[mimeType(img.MimeType)]; !ok {
		return validationError(KindInvalidImage, "image", "unsupported image type %q", img.MimeType)
	}
	return nil
}

// mimeType drops parameters and case from a Content-Type value.
func mimeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// CheckSocials trims the links and rejects any that is not an absolute
// http(s) URL.
func CheckSocials(s domain.SocialLinks) (domain.SocialLinks, error) {
	out := domain.SocialLinks{
		Twitter:  strings.TrimSpace(s.Twitter),
		Telegram: strings.TrimSpace(s.Telegram),
		Website:  strings.TrimSpace(s.Website),
	}
	for _, l := range []struct{ field, value string }{
		{"twitter", out.Twitter},
		{"telegram", out.Telegram},
		{"website", out.Website},
	} {
		if err := CheckLink(l.field, l.value); err != nil {
			return out, err
		}
	}
	return out, nil
}

// CheckLink returns an InvalidLink error unless value is empty or an
// absolute http(s) URL.
func CheckLink(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationError(KindInvalidLink, field, "%s must be an http(s) URL", field)
	}
	return nil
}

func contributionLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, validationError(KindInvalidContribution, "initialContribution", "initial contribution cannot be negative")
	}
	if sol.GreaterThan(MaxInitialContribution) {
		return 0, validationError(KindInvalidContribution, "initialContribution",
			"initial contribution %s SOL exceeds %s SOL", sol.String(), MaxInitialContribution.String())
	}
	lamports := sol.Shift(lamportsPerSOLExp)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, validationError(KindInvalidContribution, "initialContribution",
			"initial contribution %s has more than %d decimal places", sol.String(), lamportsPerSOLExp)
	}
	return uint64(lamports.IntPart()), nil
}

// buildBundle lays out form fields in a fixed order followed by the image.
func buildBundle(req domain.LaunchRequest) *aggregator.TokenInfoRequest {
	fields := []aggregator.Field{
		{Name: "name", Value: req.Name},
		{Name: "symbol", Value: req.Symbol},
		{Name: "description", Value: req.Description},
	}
	if req.Socials.Twitter != "" {
		fields = append(fields, aggregator.Field{Name: "twitter", Value: req.Socials.Twitter})
	}
	if req.Socials.Telegram != "" {
		fields = append(fields, aggregator.Field{Name: "telegram", Value: req.Socials.Telegram})
	}
	if req.Socials.Website != "" {
		fields = append(fields, aggregator.Field{Name: "website", Value: req.Socials.Website})
	}

	mt := mimeType(req.Image.MimeType)
	filename := path.Base(strings.TrimSpace(req.Image.Filename))
	if filename == "" || filename == "." || filename == "/" {
		filename = "image" + imageExtensions[mt]
	}

	return &aggregator.TokenInfoRequest{
		Fields: fields,
		File: aggregator.FilePart{
			FieldName: "image",
			Filename:  filename,
			MimeType:  mt,
			Data:      req.Image.Data,
		},
	}
}
