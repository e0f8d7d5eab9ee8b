package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"larpx402/internal/domain"
	"larpx402/internal/launch"
	"larpx402/internal/solana"
	"larpx402/internal/storage"
)

// multipartMemory is how much of a token-info form is held in memory
// before spilling to disk.
const multipartMemory = 8 << 20

// handleTokenInfo validates a multipart launch form and publishes its
// metadata. The answer carries the reserved mint.
func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPI(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, launch.MaxImageBytes+maxJSONBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, string(launch.KindPayloadTooLarge), "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	img, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(launch.KindInvalidImage), err.Error())
		return
	}

	creator := r.FormValue("creator")
	if creator == "" {
		creator = r.FormValue("wallet")
	}
	payload, err := launch.Prepare(domain.LaunchRequest{
		Name:        r.FormValue("name"),
		Symbol:      r.FormValue("symbol"),
		Description: r.FormValue("description"),
		Image:       img,
		Socials: domain.SocialLinks{
			Twitter:  r.FormValue("twitter"),
			Telegram: r.FormValue("telegram"),
			Website:  r.FormValue("website"),
		},
		CreatorIdentity: creator,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	meta, err := s.pipeline.Publish(r.Context(), payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("metadata published",
		zap.String("mint", meta.TokenIdentity),
		zap.String("creator", payload.Request.CreatorIdentity))
	writeOK(w, http.StatusOK, meta)
}

// readImage returns the "image" part. A missing part yields an empty asset
// so validation reports it.
func readImage(r *http.Request) (domain.ImageAsset, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return domain.ImageAsset{}, nil
	}
	if err != nil {
		return domain.ImageAsset{}, err
	}
	defer file.Close()

	// One byte over the cap so validation sees the oversize
	data, err := io.ReadAll(io.LimitReader(file, launch.MaxImageBytes+1))
	if err != nil {
		return domain.ImageAsset{}, err
	}
	mt := header.Header.Get("Content-Type")
	if mt == "" || mt == "application/octet-stream" {
		mt = http.DetectContentType(data)
	}
	return domain.ImageAsset{Data: data, MimeType: mt, Filename: header.Filename}, nil
}

type feeConfigRequest struct {
	Creator   string               `json:"creator"`
	TokenMint string               `json:"tokenMint"`
	Claimants []domain.FeeClaimant `json:"claimants"`
}

type feeConfigResponse struct {
	NeedsCreation      bool     `json:"needsCreation"`
	ConfigKey          string   `json:"configKey"`
	Transactions       []string `json:"transactions"`
	CreatorBasisPoints int      `json:"creatorBasisPoints"`
}

// handleFeeConfig declares the fee split for a published mint. Pending
// setup transactions come back for the browser wallet to sign in order.
func (s *Server) handleFeeConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPI(w) {
		return
	}
	var req feeConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TokenMint) == "" {
		writeMissing(w, "tokenMint")
		return
	}

	payload, err := launch.PrepareTransaction(req.Creator, req.Claimants, decimal.Zero)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.pipeline.Negotiate(r.Context(), payload, &domain.MetadataRecord{TokenIdentity: strings.TrimSpace(req.TokenMint)})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := feeConfigResponse{
		ConfigKey:          outcome.ConfigKey(),
		Transactions:       []string{},
		CreatorBasisPoints: payload.CreatorShare,
	}
	if setup, ok := outcome.(launch.SetupRequired); ok {
		resp.NeedsCreation = true
		resp.Transactions = setup.PendingTransactions
	}
	writeOK(w, http.StatusOK, resp)
}

type launchTxRequest struct {
	Creator             string          `json:"creator"`
	TokenMint           string          `json:"tokenMint"`
	MetadataURI         string          `json:"metadataUri"`
	ConfigKey           string          `json:"configKey"`
	InitialContribution decimal.Decimal `json:"initialContribution"`
}

type launchTxResponse struct {
	Transaction string          `json:"transaction"`
	Encoding    solana.Encoding `json:"encoding"`
}

// handleLaunchTransaction returns the unsigned launch transaction.
func (s *Server) handleLaunchTransaction(w http.ResponseWriter, r *http.Request) {
	if !s.requireAPI(w) {
		return
	}
	var req launchTxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, f := range []struct{ name, value string }{
		{"tokenMint", req.TokenMint},
		{"metadataUri", req.MetadataURI},
		{"configKey", req.ConfigKey},
	} {
		if strings.TrimSpace(f.value) == "" {
			writeMissing(w, f.name)
			return
		}
	}

	payload, err := launch.PrepareTransaction(req.Creator, nil, req.InitialContribution)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	meta := &domain.MetadataRecord{
		TokenIdentity:     strings.TrimSpace(req.TokenMint),
		MetadataReference: strings.TrimSpace(req.MetadataURI),
	}
	encoded, err := s.pipeline.BuildLaunchTransaction(r.Context(), payload, meta, strings.TrimSpace(req.ConfigKey))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, launchTxResponse{Transaction: encoded, Encoding: solana.EncodingBase58})
}

type recordLaunchRequest struct {
	Signature   string             `json:"signature"`
	TokenMint   string             `json:"tokenMint"`
	Name        string             `json:"name"`
	Symbol      string             `json:"symbol"`
	Description string             `json:"description"`
	ImageURL    string             `json:"imageUrl"`
	MetadataURI string             `json:"metadataUri"`
	Socials     domain.SocialLinks `json:"socials"`
	Creator     string             `json:"creator"`
}

// handleRecordLaunch stores a launch signed and submitted by the browser.
// The signature must already be confirmed without error on the ledger.
func (s *Server) handleRecordLaunch(w http.ResponseWriter, r *http.Request) {
	var req recordLaunchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec := domain.LaunchRecord{
		TokenIdentity:        strings.TrimSpace(req.TokenMint),
		TransactionSignature: strings.TrimSpace(req.Signature),
		Name:                 strings.TrimSpace(req.Name),
		Symbol:               launch.NormalizeSymbol(req.Symbol),
		Description:          strings.TrimSpace(req.Description),
		ImageURL:             strings.TrimSpace(req.ImageURL),
		MetadataReference:    strings.TrimSpace(req.MetadataURI),
		Socials:              req.Socials,
		CreatorIdentity:      strings.TrimSpace(req.Creator),
		Network:              string(s.network),
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"signature", rec.TransactionSignature, 0},
		{"tokenMint", rec.TokenIdentity, 0},
		{"creator", rec.CreatorIdentity, 0},
		{"name", rec.Name, launch.MaxNameLen},
		{"symbol", rec.Symbol, launch.MaxSymbolLen},
	} {
		if f.value == "" {
			writeMissing(w, f.name)
			return
		}
		if f.max > 0 && utf8.RuneCountInString(f.value) > f.max {
			writeJSON(w, http.StatusBadRequest, envelope{
				Error: f.name + " is too long",
				Kind:  string(launch.KindFieldTooLong),
				Field: f.name,
			})
			return
		}
	}
	if utf8.RuneCountInString(rec.Description) > launch.MaxDescriptionLen {
		writeJSON(w, http.StatusBadRequest, envelope{
			Error: "description is too long",
			Kind:  string(launch.KindFieldTooLong),
			Field: "description",
		})
		return
	}
	for _, k := range []struct{ field, value string }{
		{"creator", rec.CreatorIdentity},
		{"tokenMint", rec.TokenIdentity},
	} {
		if err := solana.ValidatePublicKey(k.value); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{
				Error: k.field + ": " + err.Error(),
				Kind:  string(launch.KindInvalidIdentity),
				Field: k.field,
			})
			return
		}
	}
	socials, err := launch.CheckSocials(req.Socials)
	if err == nil {
		err = launch.CheckLink("imageUrl", rec.ImageURL)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec.Socials = socials

	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger_unavailable", "no ledger configured")
		return
	}
	statuses, err := s.ledger.GetSignatureStatuses(r.Context(), rec.TransactionSignature)
	if err != nil {
		s.logger.Warn("signature status lookup failed",
			zap.String("signature", rec.TransactionSignature),
			zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ledger_unavailable", "could not verify signature")
		return
	}
	var st *solana.SignatureStatus
	if len(statuses) > 0 {
		st = statuses[0]
	}
	switch {
	case st != nil && st.Err != nil:
		writeError(w, http.StatusUnprocessableEntity, "transaction_failed", "transaction failed on chain")
		return
	case st == nil || !solana.CommitmentConfirmed.Reached(st.ConfirmationStatus):
		writeError(w, http.StatusConflict, "not_confirmed", "transaction is not confirmed yet")
		return
	}

	rec.ID = s.newID()
	rec.CreatedAt = s.now().UnixMilli()
	if err := s.launches.Insert(r.Context(), &rec); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("launch recorded",
		zap.String("mint", rec.TokenIdentity),
		zap.String("signature", rec.TransactionSignature))
	writeOK(w, http.StatusCreated, rec)
}

func (s *Server) handleListLaunches(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), storage.DefaultListLimit)
	launches, err := s.launches.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if launches == nil {
		launches = []*domain.LaunchRecord{}
	}
	writeOK(w, http.StatusOK, launches)
}

func (s *Server) handleGetLaunch(w http.ResponseWriter, r *http.Request) {
	l, err := s.launches.GetByMint(r.Context(), chi.URLParam(r, "mint"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, l)
}

func (s *Server) requireAPI(w http.ResponseWriter) bool {
	if !s.hasAPI {
		writeError(w, http.StatusServiceUnavailable, string(launch.KindUpstreamUnavailable), "no aggregator configured")
		return false
	}
	return true
}

func writeMissing(w http.ResponseWriter, field string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Error: field + " is required",
		Kind:  string(launch.KindMissingField),
		Field: field,
	})
}
