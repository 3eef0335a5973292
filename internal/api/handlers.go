package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/types"
)

// walletResponse is a wallet row plus its derived tier.
type walletResponse struct {
	*models.Wallet
	Tier *types.TrustTier `json:"tier,omitempty"`
}

// handleGetWallet returns one wallet with its trust score and tier.
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	wallet, err := s.wallets.Get(r.Context(), address)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if wallet == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "wallet not found")
		return
	}

	resp := walletResponse{Wallet: wallet}
	if wallet.TrustScore != nil {
		tier := types.TierForScore(*wallet.TrustScore)
		resp.Tier = &tier
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetHistory returns a wallet's score history, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be an integer in [1,500]")
			return
		}
		limit = parsed
	}

	history, err := s.scores.History(r.Context(), address, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": strings.ToLower(address),
		"history": history,
	})
}

type submitFeedbackRequest struct {
	TxHash        string  `json:"tx_hash"`
	AgentID       int64   `json:"agent_id"`
	ClientAddress string  `json:"client_address"`
	Value         string  `json:"value"`
	Tag1          *string `json:"tag1,omitempty"`
	Tag2          *string `json:"tag2,omitempty"`
	Endpoint      *string `json:"endpoint,omitempty"`
}

// handleSubmitFeedback accepts off-chain feedback tied to an observed
// transaction. The submitting address must have been a participant.
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req submitFeedbackRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "malformed request body")
		return
	}
	if req.TxHash == "" || req.ClientAddress == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "tx_hash and client_address are required")
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "value must be a decimal number")
		return
	}
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(5)) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "value must be in [0,5]")
		return
	}

	fb := &models.Feedback{
		TxHash:        strings.ToLower(req.TxHash),
		AgentID:       req.AgentID,
		ClientAddress: strings.ToLower(req.ClientAddress),
		Value:         value,
		Tag1:          req.Tag1,
		Tag2:          req.Tag2,
		Endpoint:      req.Endpoint,
	}

	inserted, err := s.feedback.InsertFromAPI(r.Context(), s.transactions, fb)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !inserted {
		respondJSON(w, http.StatusOK, map[string]interface{}{"inserted": false})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"inserted": true})
}

type createWebhookRequest struct {
	URL           string             `json:"url"`
	WalletAddress *string            `json:"wallet_address,omitempty"`
	EventType     types.WebhookEvent `json:"event_type"`
	Threshold     *int               `json:"threshold,omitempty"`
}

// handleCreateWebhook registers a webhook for the calling API key.
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	key := KeyFromContext(r.Context())

	var req createWebhookRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "malformed request body")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "url must be an http(s) URL")
		return
	}
	switch req.EventType {
	case types.EventScoreChange, types.EventScoreDrop, types.EventScoreRise:
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "event_type must be score_change, score_drop, or score_rise")
		return
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 100) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "threshold must be in [0,100]")
		return
	}

	hook := &models.Webhook{
		APIKeyID:      key.ID,
		URL:           req.URL,
		WalletAddress: req.WalletAddress,
		EventType:     req.EventType,
		Threshold:     req.Threshold,
	}
	if err := s.webhooks.Create(r.Context(), hook); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, hook)
}

// handleEnableWebhook re-activates a webhook disabled by delivery
// failures.
func (s *Server) handleEnableWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "webhook id must be a UUID")
		return
	}

	if err := s.webhooks.Enable(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "webhook not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"enabled": true})
}

// handleStats returns corpus-level counts and the tier distribution.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	walletCount, err := s.wallets.Count(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	bySource, err := s.wallets.CountBySource(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	txCount, err := s.transactions.Count(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	feedbackCount, err := s.feedback.Count(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	tiers, err := s.scores.TierDistribution(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets":          walletCount,
		"walletsBySource":  bySource,
		"transactions":     txCount,
		"feedback":         feedbackCount,
		"tierDistribution": tiers,
	})
}
