package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larpx402/internal/aggregator"
	"larpx402/internal/domain"
	"larpx402/internal/launch"
	"larpx402/internal/solana"
	"larpx402/internal/storage/memory"
	"larpx402/internal/threat"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

type fakeAPI struct {
	calls int

	tokenInfoErr error
	feeConfig    *aggregator.FeeShareConfig
	launchTx     string

	gotTokenInfo *aggregator.TokenInfoRequest
	gotFeeShare  *aggregator.FeeShareRequest
	gotLaunch    *aggregator.LaunchTxRequest
}

func (f *fakeAPI) CreateTokenInfo(_ context.Context, req *aggregator.TokenInfoRequest) (*aggregator.TokenInfo, error) {
	f.calls++
	f.gotTokenInfo = req
	if f.tokenInfoErr != nil {
		return nil, f.tokenInfoErr
	}
	return &aggregator.TokenInfo{TokenMint: "Mint1", TokenMetadata: "ipfs://meta"}, nil
}

func (f *fakeAPI) CreateFeeShareConfig(_ context.Context, req *aggregator.FeeShareRequest) (*aggregator.FeeShareConfig, error) {
	f.calls++
	f.gotFeeShare = req
	return f.feeConfig, nil
}

func (f *fakeAPI) CreateLaunchTransaction(_ context.Context, req *aggregator.LaunchTxRequest) (string, error) {
	f.calls++
	f.gotLaunch = req
	return f.launchTx, nil
}

type fakeRPC struct {
	status *solana.SignatureStatus
	err    error
	slot   int64
}

func (f *fakeRPC) SendTransaction(context.Context, []byte, *solana.SendOptions) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, sigs ...string) ([]*solana.SignatureStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*solana.SignatureStatus{f.status}, nil
}

func (f *fakeRPC) GetSlot(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.slot, nil
}

type fakeImages struct {
	got threat.Threat
}

func (f *fakeImages) Generate(_ context.Context, t threat.Threat) (string, error) {
	f.got = t
	return "https://img.example/" + t.Type + ".png", nil
}

type harness struct {
	api      *fakeAPI
	rpc      *fakeRPC
	images   *fakeImages
	launches *memory.LaunchStore
	scans    *memory.ScanHistoryStore
	srv      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:      &fakeAPI{},
		rpc:      &fakeRPC{slot: 42},
		images:   &fakeImages{},
		launches: memory.NewLaunchStore(),
		scans:    memory.NewScanHistoryStore(),
	}
	n := 0
	s := NewServer(Options{
		API:      h.api,
		Ledger:   h.rpc,
		Images:   h.images,
		Launches: h.launches,
		Scans:    h.scans,
		Network:  solana.Devnet,
		Backend:  "memory",
		Now:      func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		NewID: func() string {
			n++
			return "id-" + strconv.Itoa(n)
		},
	})
	h.srv = httptest.NewServer(s.Router())
	t.Cleanup(h.srv.Close)
	return h
}

type response struct {
	Success        bool            `json:"success"`
	Response       json.RawMessage `json:"response"`
	Error          string          `json:"error"`
	Kind           string          `json:"kind"`
	Field          string          `json:"field"`
	UpstreamStatus int             `json:"upstreamStatus"`
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string) (int, response) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func (h *harness) postJSON(t *testing.T, path string, v interface{}) (int, response) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return h.do(t, http.MethodPost, path, bytes.NewReader(b), "application/json")
}

func tokenInfoForm(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="larp.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newCreator() string {
	return solanago.NewWallet().PublicKey().String()
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "devnet", got.Network)
	assert.Equal(t, "memory", got.Backend)
	assert.Equal(t, int64(42), got.Slot)
}

func TestHealth_LedgerDown(t *testing.T) {
	h := newHarness(t)
	h.rpc.err = errors.New("connection refused")

	resp, err := http.Get(h.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "degraded", got.Status)
	assert.Contains(t, got.LedgerError, "connection refused")
}

func TestCORS_AnyOrigin(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/fee-config", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://somewhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTokenInfo_Publishes(t *testing.T) {
	h := newHarness(t)
	creator := newCreator()

	body, ct := tokenInfoForm(t, map[string]string{
		"name":        "Trojan Win32",
		"symbol":      "$troj",
		"description": "found in downloads",
		"creator":     creator,
		"twitter":     "https://x.com/larp",
	}, pngHeader)
	status, resp := h.do(t, http.MethodPost, "/api/token-info", body, ct)
	require.Equal(t, http.StatusOK, status, resp.Error)

	var meta domain.MetadataRecord
	require.NoError(t, json.Unmarshal(resp.Response, &meta))
	assert.Equal(t, "Mint1", meta.TokenIdentity)
	assert.Equal(t, "ipfs://meta", meta.MetadataReference)

	require.NotNil(t, h.api.gotTokenInfo)
	assert.Equal(t, "TROJ", h.api.gotTokenInfo.Fields[1].Value)
	assert.Equal(t, pngHeader, h.api.gotTokenInfo.File.Data)
}

func TestTokenInfo_ValidationSkipsAggregator(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		fields map[string]string
		image  []byte
		status int
		kind   launch.ErrorKind
	}{
		{
			name:   "missing image",
			fields: map[string]string{"name": "a", "symbol": "b", "description": "c", "creator": newCreator()},
			status: http.StatusBadRequest,
			kind:   launch.KindInvalidImage,
		},
		{
			name:   "name too long",
			fields: map[string]string{"name": strings.Repeat("x", 33), "symbol": "b", "description": "c", "creator": newCreator()},
			image:  pngHeader,
			status: http.StatusBadRequest,
			kind:   launch.KindFieldTooLong,
		},
		{
			name:   "image too large",
			fields: map[string]string{"name": "a", "symbol": "b", "description": "c", "creator": newCreator()},
			image:  append(append([]byte{}, pngHeader...), make([]byte, launch.MaxImageBytes)...),
			status: http.StatusRequestEntityTooLarge,
			kind:   launch.KindPayloadTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := tokenInfoForm(t, tt.fields, tt.image)
			status, resp := h.do(t, http.MethodPost, "/api/token-info", body, ct)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, string(tt.kind), resp.Kind)
		})
	}
	assert.Zero(t, h.api.calls)
}

func TestTokenInfo_UpstreamRejected(t *testing.T) {
	h := newHarness(t)
	h.api.tokenInfoErr = &aggregator.APIError{Status: 401, Message: "invalid api key"}

	body, ct := tokenInfoForm(t, map[string]string{
		"name": "a", "symbol": "b", "description": "c", "creator": newCreator(),
	}, pngHeader)
	status, resp := h.do(t, http.MethodPost, "/api/token-info", body, ct)

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, string(launch.KindUpstreamRejected), resp.Kind)
	assert.Equal(t, 401, resp.UpstreamStatus)
	assert.Equal(t, "invalid api key", resp.Error)
}

func TestFeeConfig_SetupRequired(t *testing.T) {
	h := newHarness(t)
	h.api.feeConfig = &aggregator.FeeShareConfig{
		NeedsCreation: true,
		ConfigKey:     "Cfg1",
		Transactions:  []string{"tx1", "tx2"},
	}
	creator := newCreator()
	claimant := newCreator()

	status, resp := h.postJSON(t, "/api/fee-config", map[string]interface{}{
		"creator":   creator,
		"tokenMint": "Mint1",
		"claimants": []map[string]interface{}{{"identity": claimant, "basisPoints": 2500}},
	})
	require.Equal(t, http.StatusOK, status, resp.Error)

	var got feeConfigResponse
	require.NoError(t, json.Unmarshal(resp.Response, &got))
	assert.True(t, got.NeedsCreation)
	assert.Equal(t, "Cfg1", got.ConfigKey)
	assert.Equal(t, []string{"tx1", "tx2"}, got.Transactions)
	assert.Equal(t, 7500, got.CreatorBasisPoints)

	assert.Equal(t, []string{creator, claimant}, h.api.gotFeeShare.Claimers)
	assert.Equal(t, []int{7500, 2500}, h.api.gotFeeShare.BasisPoints)
	assert.Equal(t, "Mint1", h.api.gotFeeShare.BaseMint)
}

func TestFeeConfig_InvalidSplitNoUpstreamCall(t *testing.T) {
	tests := []struct {
		name   string
		shares []int
	}{
		{"over max", []int{9901}},
		{"overflowing total", []int{100, math.MaxInt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			claimants := make([]map[string]interface{}, 0, len(tt.shares))
			for _, bps := range tt.shares {
				claimants = append(claimants, map[string]interface{}{"identity": newCreator(), "basisPoints": bps})
			}
			status, resp := h.postJSON(t, "/api/fee-config", map[string]interface{}{
				"creator":   newCreator(),
				"tokenMint": "Mint1",
				"claimants": claimants,
			})
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, string(launch.KindInvalidFeeSplit), resp.Kind)
			assert.Zero(t, h.api.calls)
		})
	}
}

func TestLaunchTransaction(t *testing.T) {
	h := newHarness(t)
	h.api.launchTx = "base58tx"
	creator := newCreator()

	status, resp := h.postJSON(t, "/api/launch-transaction", map[string]interface{}{
		"creator":             creator,
		"tokenMint":           "Mint1",
		"metadataUri":         "ipfs://meta",
		"configKey":           "Cfg1",
		"initialContribution": "0.25",
	})
	require.Equal(t, http.StatusOK, status, resp.Error)

	var got launchTxResponse
	require.NoError(t, json.Unmarshal(resp.Response, &got))
	assert.Equal(t, "base58tx", got.Transaction)
	assert.Equal(t, solana.EncodingBase58, got.Encoding)

	assert.Equal(t, uint64(250_000_000), h.api.gotLaunch.InitialBuyLamports)
	assert.Equal(t, creator, h.api.gotLaunch.Wallet)
	assert.Equal(t, "Cfg1", h.api.gotLaunch.ConfigKey)
}

func TestLaunchTransaction_MissingConfigKey(t *testing.T) {
	h := newHarness(t)

	status, resp := h.postJSON(t, "/api/launch-transaction", map[string]interface{}{
		"creator":     newCreator(),
		"tokenMint":   "Mint1",
		"metadataUri": "ipfs://meta",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(launch.KindMissingField), resp.Kind)
	assert.Equal(t, "configKey", resp.Field)
	assert.Zero(t, h.api.calls)
}

func TestPreparationRoutes_NoAggregator(t *testing.T) {
	s := NewServer(Options{Launches: memory.NewLaunchStore(), Scans: memory.NewScanHistoryStore()})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/fee-config", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

var recordedMint = newCreator()

func recordBody(creator string) map[string]interface{} {
	return map[string]interface{}{
		"signature":   "Sig1",
		"tokenMint":   recordedMint,
		"name":        "Trojan",
		"symbol":      "$troj",
		"description": "found it",
		"creator":     creator,
	}
}

func TestRecordLaunch_Confirmed(t *testing.T) {
	h := newHarness(t)
	h.rpc.status = &solana.SignatureStatus{Slot: 10, ConfirmationStatus: "confirmed"}

	var published []*domain.LaunchRecord
	h.launches.OnInsert(func(l *domain.LaunchRecord) { published = append(published, l) })

	status, resp := h.postJSON(t, "/api/launches", recordBody(newCreator()))
	require.Equal(t, http.StatusCreated, status, resp.Error)

	var rec domain.LaunchRecord
	require.NoError(t, json.Unmarshal(resp.Response, &rec))
	assert.Equal(t, "id-1", rec.ID)
	assert.Equal(t, "TROJ", rec.Symbol)
	assert.Equal(t, "devnet", rec.Network)
	assert.Equal(t, int64(1_700_000_000_000), rec.CreatedAt)
	require.Len(t, published, 1)
	assert.Equal(t, "Sig1", published[0].TransactionSignature)

	status, resp = h.do(t, http.MethodGet, "/api/launches/"+recordedMint, nil, "")
	require.Equal(t, http.StatusOK, status)
	var got domain.LaunchRecord
	require.NoError(t, json.Unmarshal(resp.Response, &got))
	assert.Equal(t, "Sig1", got.TransactionSignature)
}

func TestRecordLaunch_Unverified(t *testing.T) {
	tests := []struct {
		name   string
		status *solana.SignatureStatus
		err    error
		want   int
		kind   string
	}{
		{name: "unknown signature", want: http.StatusConflict, kind: "not_confirmed"},
		{name: "processed only", status: &solana.SignatureStatus{ConfirmationStatus: "processed"}, want: http.StatusConflict, kind: "not_confirmed"},
		{name: "failed on chain", status: &solana.SignatureStatus{ConfirmationStatus: "finalized", Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}, want: http.StatusUnprocessableEntity, kind: "transaction_failed"},
		{name: "rpc down", err: errors.New("timeout"), want: http.StatusServiceUnavailable, kind: "ledger_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.rpc.status = tt.status
			h.rpc.err = tt.err

			status, resp := h.postJSON(t, "/api/launches", recordBody(newCreator()))
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.kind, resp.Kind)

			list, err := h.launches.List(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestRecordLaunch_InvalidCreator(t *testing.T) {
	h := newHarness(t)
	h.rpc.status = &solana.SignatureStatus{ConfirmationStatus: "finalized"}

	status, resp := h.postJSON(t, "/api/launches", recordBody("not-a-key"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(launch.KindInvalidIdentity), resp.Kind)
}

func TestRecordLaunch_InvalidLink(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(body map[string]interface{})
		kind  launch.ErrorKind
		field string
	}{
		{"script website", func(b map[string]interface{}) {
			b["socials"] = map[string]string{"website": "javascript:alert(1)"}
		}, launch.KindInvalidLink, "website"},
		{"relative twitter", func(b map[string]interface{}) {
			b["socials"] = map[string]string{"twitter": "x.com/larp"}
		}, launch.KindInvalidLink, "twitter"},
		{"script image", func(b map[string]interface{}) {
			b["imageUrl"] = "javascript:alert(2)"
		}, launch.KindInvalidLink, "imageUrl"},
		{"bad mint", func(b map[string]interface{}) {
			b["tokenMint"] = "Mint1"
		}, launch.KindInvalidIdentity, "tokenMint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.rpc.status = &solana.SignatureStatus{ConfirmationStatus: "finalized"}

			body := recordBody(newCreator())
			tt.edit(body)
			status, resp := h.postJSON(t, "/api/launches", body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, string(tt.kind), resp.Kind)
			assert.Equal(t, tt.field, resp.Field)

			list, err := h.launches.List(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestListLaunches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, mint := range []string{"A", "B", "C"} {
		require.NoError(t, h.launches.Insert(ctx, &domain.LaunchRecord{
			ID: mint, TokenIdentity: mint, TransactionSignature: "s" + mint, CreatedAt: int64(i),
		}))
	}

	status, resp := h.do(t, http.MethodGet, "/api/launches?limit=2", nil, "")
	require.Equal(t, http.StatusOK, status)

	var got []domain.LaunchRecord
	require.NoError(t, json.Unmarshal(resp.Response, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].TokenIdentity)
	assert.Equal(t, "B", got[1].TokenIdentity)
}

func TestGetLaunch_NotFound(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodGet, "/api/launches/Nope", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", resp.Kind)
}

func TestScans_RecordListClear(t *testing.T) {
	h := newHarness(t)

	status, resp := h.postJSON(t, "/api/scans", map[string]interface{}{
		"scanType":   "file",
		"target":     "C:/Users/anon/Downloads",
		"durationMs": 1200,
		"threats":    []string{"Trojan.Win32.Larp"},
	})
	require.Equal(t, http.StatusCreated, status, resp.Error)
	var rec domain.ScanRecord
	require.NoError(t, json.Unmarshal(resp.Response, &rec))
	assert.Equal(t, 1, rec.ThreatsFound)
	assert.Equal(t, scanStatusInfected, rec.Status)

	status, resp = h.postJSON(t, "/api/scans", map[string]interface{}{
		"scanType": "url",
		"threats":  []string{},
	})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, json.Unmarshal(resp.Response, &rec))
	assert.Equal(t, scanStatusClean, rec.Status)

	status, resp = h.do(t, http.MethodGet, "/api/scans", nil, "")
	require.Equal(t, http.StatusOK, status)
	var list []domain.ScanRecord
	require.NoError(t, json.Unmarshal(resp.Response, &list))
	assert.Len(t, list, 2)

	status, _ = h.do(t, http.MethodDelete, "/api/scans", nil, "")
	assert.Equal(t, http.StatusNoContent, status)

	_, resp = h.do(t, http.MethodGet, "/api/scans", nil, "")
	require.NoError(t, json.Unmarshal(resp.Response, &list))
	assert.Empty(t, list)
}

func TestScans_SimulatedThreats(t *testing.T) {
	h := newHarness(t)

	status, resp := h.postJSON(t, "/api/scans", map[string]interface{}{"scanType": "full"})
	require.Equal(t, http.StatusCreated, status)

	var rec domain.ScanRecord
	require.NoError(t, json.Unmarshal(resp.Response, &rec))
	assert.LessOrEqual(t, rec.ThreatsFound, maxSimulatedThreats)
	assert.Len(t, rec.Threats, rec.ThreatsFound)
	for _, name := range rec.Threats {
		_, ok := threat.Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestScans_InvalidType(t *testing.T) {
	h := newHarness(t)

	status, resp := h.postJSON(t, "/api/scans", map[string]interface{}{"scanType": "quantum"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_scan_type", resp.Kind)
}

func TestThreats_Sample(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodGet, "/api/threats?sample=3", nil, "")
	require.Equal(t, http.StatusOK, status)

	var got []threatEntry
	require.NoError(t, json.Unmarshal(resp.Response, &got))
	require.Len(t, got, 3)
	for _, e := range got {
		assert.NotEmpty(t, e.Name)
		assert.True(t, strings.HasPrefix(e.Branding.Symbol, "$"), e.Branding.Symbol)
	}
}

func TestGenerateImage(t *testing.T) {
	h := newHarness(t)

	status, resp := h.postJSON(t, "/api/generate-image", map[string]string{"threat": "worm.shill.gen"})
	require.Equal(t, http.StatusOK, status, resp.Error)

	var got generateImageResponse
	require.NoError(t, json.Unmarshal(resp.Response, &got))
	assert.Equal(t, "https://img.example/worm.png", got.ImageURL)
	assert.Equal(t, "Worm.Shill.Gen", h.images.got.Name)
}

func TestGenerateImage_UnknownThreat(t *testing.T) {
	h := newHarness(t)

	status, resp := h.postJSON(t, "/api/generate-image", map[string]string{"threat": "Nope"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown_threat", resp.Kind)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodPut, "/api/scans", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "method_not_allowed", resp.Kind)
}
