package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"radiocare-agent/internal/domain"
)

const (
	defaultUsageDescription = "Medical treatment"
	defaultUsageHospital    = "PGIMER Chandigarh"
)

func (s *Server) handleGetBenefits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	acct, err := s.benefits.Account(r.Context(), userID)
	if err != nil {
		s.logger.Error("load benefit account failed", zap.String("userId", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to load benefit details",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    acct,
	})
}

type updateBenefitsRequest struct {
	HasCard       *bool  `json:"hasCard"`
	TotalCoverage *int64 `json:"totalCoverageAmount"`
	AmountUsed    *int64 `json:"amountUsed"`
}

// handleUpdateBenefits applies a partial update: only fields present in
// the body change, and the remaining balance is always recomputed.
func (s *Server) handleUpdateBenefits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var req updateBenefitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid request body",
		})
		return
	}

	acct, err := s.benefits.Account(r.Context(), userID)
	if err != nil {
		s.logger.Error("load benefit account failed", zap.String("userId", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to load benefit details",
		})
		return
	}

	if req.HasCard != nil {
		acct.HasCard = req.HasCard
	}
	if req.TotalCoverage != nil {
		if *req.TotalCoverage <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "totalCoverageAmount must be positive",
			})
			return
		}
		acct.TotalCoverage = *req.TotalCoverage
	}
	used := acct.AmountUsed
	if req.AmountUsed != nil {
		used = *req.AmountUsed
	}
	acct.ApplyUsage(used, time.Now().UTC())

	if err := s.benefits.Save(r.Context(), userID, acct); err != nil {
		s.logger.Error("save benefit account failed", zap.String("userId", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to update benefit details",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Benefit details updated",
		"data":    acct,
	})
}

type addUsageRequest struct {
	Description string `json:"description"`
	Amount      int64  `json:"amountUsed"`
	Hospital    string `json:"hospital"`
}

func (s *Server) handleAddUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var req addUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid request body",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "amountUsed must be positive",
		})
		return
	}
	if req.Description == "" {
		req.Description = defaultUsageDescription
	}
	if req.Hospital == "" {
		req.Hospital = defaultUsageHospital
	}

	acct, err := s.benefits.Account(r.Context(), userID)
	if err != nil {
		s.logger.Error("load benefit account failed", zap.String("userId", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to load benefit details",
		})
		return
	}

	now := time.Now().UTC()
	acct.UsageHistory = append(acct.UsageHistory, domain.UsageEntry{
		Date:        now,
		Description: req.Description,
		Amount:      req.Amount,
		Hospital:    req.Hospital,
	})
	acct.ApplyUsage(acct.AmountUsed+req.Amount, now)

	if err := s.benefits.Save(r.Context(), userID, acct); err != nil {
		s.logger.Error("save benefit account failed", zap.String("userId", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to record usage",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Usage recorded",
		"data": map[string]any{
			"newUsage":        req.Amount,
			"amountUsed":      acct.AmountUsed,
			"amountRemaining": acct.AmountRemaining,
		},
	})
}

func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	acct, err := s.benefits.Account(r.Context(), userID)
	if err != nil {
		s.logger.Error("load benefit account failed", zap.String("userId", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to load usage history",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":          userID,
		"usageHistory":    acct.UsageHistory,
		"amountUsed":      acct.AmountUsed,
		"amountRemaining": acct.AmountRemaining,
	})
}
