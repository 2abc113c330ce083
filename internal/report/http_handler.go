package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/respond"
	"github.com/rpattn/ngoreports/pkg/validator"

	"github.com/gorilla/mux"
)

const (
	maxReportBodyBytes = 64 << 10
	monthFormatMessage = "Month must be in YYYY-MM format"
)

// Handler serves report submission and dashboard endpoints.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the handler's routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/report", h.submit).Methods(http.MethodPost)
	r.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
	r.HandleFunc("/reports", h.list).Methods(http.MethodGet)
}

type reportRequest struct {
	NGOID           string       `json:"ngo_id"`
	Month           string       `json:"month"`
	PeopleHelped    *json.Number `json:"people_helped"`
	EventsConducted *json.Number `json:"events_conducted"`
	FundsUtilized   *json.Number `json:"funds_utilized"`
}

func (req reportRequest) candidate() validator.ReportCandidate {
	return validator.ReportCandidate{
		NGOID:           req.NGOID,
		Month:           req.Month,
		PeopleHelped:    integer(req.PeopleHelped),
		EventsConducted: integer(req.EventsConducted),
		FundsUtilized:   integer(req.FundsUtilized),
	}
}

func integer(n *json.Number) *int64 {
	if n == nil {
		return nil
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBodyBytes))
	dec.UseNumber()

	var req reportRequest
	if err := dec.Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	saved, err := h.service.Submit(r.Context(), req.candidate())
	if err != nil {
		var vErr *ValidationFailedError
		if errors.As(err, &vErr) {
			respond.Error(w, http.StatusBadRequest, "Validation failed", vErr.Details()...)
			return
		}
		respond.Error(w, http.StatusInternalServerError, "Failed to save report")
		return
	}
	respond.Success(w, "Report saved.", saved)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	summary, err := h.service.Dashboard(r.Context(), month)
	if err != nil {
		if errors.Is(err, ErrInvalidMonth) {
			respond.Error(w, http.StatusBadRequest, "Validation failed", monthFormatMessage)
			return
		}
		respond.Error(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}

	message := ""
	if summary.IsEmpty() {
		message = "No reports available for this month yet"
	}
	respond.Success(w, message, summary)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(strings.TrimSpace(query.Get("limit")))
	offset, _ := strconv.Atoi(strings.TrimSpace(query.Get("offset")))

	reports, err := h.service.List(r.Context(), query.Get("month"), limit, offset)
	if err != nil {
		if errors.Is(err, ErrInvalidMonth) {
			respond.Error(w, http.StatusBadRequest, "Validation failed", monthFormatMessage)
			return
		}
		respond.Error(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	respond.Success(w, "", reports)
}
