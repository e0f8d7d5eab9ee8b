package api

import (
	"math/rand/v2"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"larpx402/internal/domain"
	"larpx402/internal/imagegen"
	"larpx402/internal/observability"
	"larpx402/internal/storage"
	"larpx402/internal/threat"
)

// maxSimulatedThreats bounds how many threats a server-side scan "finds".
const maxSimulatedThreats = 3

const (
	scanStatusClean    = "clean"
	scanStatusInfected = "infected"
)

type recordScanRequest struct {
	ScanType   domain.ScanType `json:"scanType"`
	Target     string          `json:"target"`
	DurationMs int64           `json:"durationMs"`
	// Threats found by the client. Omitted means the server rolls them.
	Threats []string `json:"threats"`
}

func (s *Server) handleRecordScan(w http.ResponseWriter, r *http.Request) {
	var req recordScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.ScanType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_scan_type", "unknown scan type "+string(req.ScanType))
		return
	}
	if req.DurationMs < 0 {
		writeError(w, http.StatusBadRequest, "invalid_duration", "durationMs cannot be negative")
		return
	}

	threats := req.Threats
	if threats == nil {
		threats = []string{}
		if n := rand.IntN(maxSimulatedThreats + 1); n > 0 {
			for _, t := range threat.Sample(n) {
				threats = append(threats, t.Name)
			}
		}
	}

	rec := &domain.ScanRecord{
		ID:           s.newID(),
		ScanType:     req.ScanType,
		Target:       strings.TrimSpace(req.Target),
		ThreatsFound: len(threats),
		Threats:      threats,
		DurationMs:   req.DurationMs,
		Status:       scanStatusClean,
		CreatedAt:    s.now().UnixMilli(),
	}
	if len(threats) > 0 {
		rec.Status = scanStatusInfected
	}
	if err := s.scans.Insert(r.Context(), rec); err != nil {
		s.fail(w, r, err)
		return
	}
	observability.RecordScan(string(rec.ScanType))
	writeOK(w, http.StatusCreated, rec)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), storage.DefaultListLimit)
	scans, err := s.scans.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if scans == nil {
		scans = []*domain.ScanRecord{}
	}
	writeOK(w, http.StatusOK, scans)
}

func (s *Server) handleClearScans(w http.ResponseWriter, r *http.Request) {
	if err := s.scans.DeleteAll(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("scan history cleared")
	w.WriteHeader(http.StatusNoContent)
}

type threatEntry struct {
	threat.Threat
	Branding threat.Branding `json:"branding"`
}

// handleThreats lists the catalog, or a random sample with ?sample=n.
func (s *Server) handleThreats(w http.ResponseWriter, r *http.Request) {
	list := threat.Catalog
	if n := parseIntDefault(r.URL.Query().Get("sample"), 0); n > 0 {
		list = threat.Sample(n)
	}
	out := make([]threatEntry, len(list))
	for i, t := range list {
		out[i] = threatEntry{Threat: t, Branding: threat.Brand(t)}
	}
	writeOK(w, http.StatusOK, out)
}

type generateImageRequest struct {
	Threat   string          `json:"threat"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Severity threat.Severity `json:"severity"`
}

type generateImageResponse struct {
	ImageURL string          `json:"imageUrl"`
	Threat   threat.Threat   `json:"threat"`
	Branding threat.Branding `json:"branding"`
}

// handleGenerateImage renders artwork for a catalog threat, or for an
// ad-hoc one when name, type and severity are all given.
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "imagegen_unavailable", "no image generator configured")
		return
	}
	var req generateImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, ok := threat.Lookup(req.Threat)
	if !ok {
		if req.Name == "" || req.Type == "" || req.Severity == "" {
			writeError(w, http.StatusBadRequest, "unknown_threat", "unknown threat "+req.Threat)
			return
		}
		t = threat.Threat{Name: req.Name, Type: req.Type, Severity: req.Severity}
	}

	imageURL, err := s.images.Generate(r.Context(), t)
	if err != nil {
		s.logger.Warn("image generation failed", zap.String("threat", t.Name), zap.Error(err))
		status := http.StatusBadGateway
		if r.Context().Err() != nil {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "imagegen_failed", err.Error())
		return
	}
	writeOK(w, http.StatusOK, generateImageResponse{ImageURL: imageURL, Threat: t, Branding: threat.Brand(t)})
}

var _ ImageGenerator = (*imagegen.Client)(nil)
