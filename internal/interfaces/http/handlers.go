package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sealbid-network/sealbid-daemon/internal/core/application"
	"github.com/sealbid-network/sealbid-daemon/internal/core/domain"
)

type operatorHandler struct {
	operator application.OperatorService
}

type createListingRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	BiddingCloseTime int64  `json:"biddingCloseTime"`
	RevealDeadline   int64  `json:"revealDeadline"`
}

type placeBidRequest struct {
	Amount string `json:"amount"`
}

type addWebhookRequest struct {
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
}

type listingReply struct {
	Id               string `json:"id"`
	Seller           string `json:"seller"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	BiddingCloseTime int64  `json:"biddingCloseTime"`
	RevealDeadline   int64  `json:"revealDeadline"`
	Status           string `json:"status"`
	FailureReason    string `json:"failureReason,omitempty"`
	Stalled          bool   `json:"stalled,omitempty"`
	CommitmentCount  int    `json:"commitmentCount"`
	Winner           string `json:"winner,omitempty"`
	ClearedPrice     string `json:"clearedPrice,omitempty"`
	SettlementTime   int64  `json:"settlementTime,omitempty"`
	HasLocalBid      bool   `json:"hasLocalBid"`
}

type bidReply struct {
	ListingId string `json:"listingId"`
	Digest    string `json:"digest"`
	Nonce     string `json:"nonce"`
}

type recordReply struct {
	ListingId      string `json:"listingId"`
	Winner         string `json:"winner"`
	ClearedPrice   string `json:"clearedPrice"`
	ResultDigest   string `json:"resultDigest"`
	Attestations   int    `json:"attestations"`
	SettlementTime int64  `json:"settlementTime"`
}

type webhookReply struct {
	Id       string `json:"id"`
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
	Secured  bool   `json:"secured"`
}

type infoReply struct {
	Identity string `json:"identity"`
	Version  string `json:"version"`
}

type errorReply struct {
	Error string `json:"error"`
}

func (h *operatorHandler) getInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.operator.GetInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infoReply{Identity: info.Identity, Version: info.Version})
}

func (h *operatorHandler) createListing(w http.ResponseWriter, r *http.Request) {
	req := &createListingRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	info, err := h.operator.CreateListing(
		r.Context(), req.Title, req.Description,
		req.BiddingCloseTime, req.RevealDeadline,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingReply(info))
}

func (h *operatorHandler) importListing(w http.ResponseWriter, r *http.Request) {
	info, err := h.operator.ImportListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingReply(info))
}

func (h *operatorHandler) listListings(w http.ResponseWriter, r *http.Request) {
	infos, err := h.operator.ListListings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	replies := make([]listingReply, 0, len(infos))
	for _, info := range infos {
		replies = append(replies, toListingReply(info))
	}
	writeJSON(w, http.StatusOK, replies)
}

func (h *operatorHandler) getListing(w http.ResponseWriter, r *http.Request) {
	info, err := h.operator.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingReply(info))
}

func (h *operatorHandler) cancelListing(w http.ResponseWriter, r *http.Request) {
	if err := h.operator.CancelListing(
		r.Context(), chi.URLParam(r, "id"),
	); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *operatorHandler) placeBid(w http.ResponseWriter, r *http.Request) {
	req := &placeBidRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeBadRequest(w, "amount is not a valid decimal")
		return
	}

	receipt, err := h.operator.PlaceBid(r.Context(), chi.URLParam(r, "id"), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bidReply{
		ListingId: receipt.ListingId,
		Digest:    receipt.Digest,
		Nonce:     receipt.Nonce,
	})
}

func (h *operatorHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.operator.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordReply{
		ListingId:      record.ListingId,
		Winner:         record.Winner,
		ClearedPrice:   record.ClearedPrice.String(),
		ResultDigest:   record.ResultDigest,
		Attestations:   len(record.Attestations),
		SettlementTime: record.SettlementTime,
	})
}

func (h *operatorHandler) addWebhook(w http.ResponseWriter, r *http.Request) {
	req := &addWebhookRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	id, err := h.operator.AddWebhook(r.Context(), req.Topic, req.Endpoint, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *operatorHandler) removeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.operator.RemoveWebhook(
		r.Context(), chi.URLParam(r, "id"),
	); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *operatorHandler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := h.operator.ListWebhooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	replies := make([]webhookReply, 0, len(subs))
	for _, sub := range subs {
		replies = append(replies, webhookReply{
			Id:       sub.GetId(),
			Topic:    sub.GetTopic(),
			Endpoint: sub.GetEndpoint(),
			Secured:  sub.IsSecured(),
		})
	}
	writeJSON(w, http.StatusOK, replies)
}

func toListingReply(info *application.ListingInfo) listingReply {
	return listingReply{
		Id:               info.Id,
		Seller:           info.Seller,
		Title:            info.Title,
		Description:      info.Description,
		BiddingCloseTime: info.BiddingCloseTime,
		RevealDeadline:   info.RevealDeadline,
		Status:           info.Status,
		FailureReason:    info.FailureReason,
		Stalled:          info.Stalled,
		CommitmentCount:  info.CommitmentCount,
		Winner:           info.Winner,
		ClearedPrice:     info.ClearedPrice,
		SettlementTime:   info.SettlementTime,
		HasLocalBid:      info.HasLocalBid,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorReply{Error: message})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, application.ErrListingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrListingMustBeOpen),
		errors.Is(err, domain.ErrListingInvalidDeadline),
		errors.Is(err, domain.ErrListingIsTerminal),
		errors.Is(err, application.ErrInboxFull):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorReply{Error: err.Error()})
}
