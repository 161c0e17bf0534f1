package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"swapmarket/crypto"
	"swapmarket/native/fa2"
	"swapmarket/native/marketplace"
	"swapmarket/observability"
)

type offerView struct {
	ID            uint64 `json:"id"`
	Issuer        string `json:"issuer"`
	TokenContract string `json:"token_contract"`
	TokenID       uint64 `json:"token_id"`
	Amount        uint64 `json:"amount"`
	UnitPrice     string `json:"unit_price"`
	Royalties     uint32 `json:"royalties"`
	Creator       string `json:"creator"`
}

func newOfferView(o *marketplace.Offer) offerView {
	return offerView{
		ID:            o.ID,
		Issuer:        crypto.FormatAddress(o.Issuer),
		TokenContract: crypto.FormatAddress(o.TokenContract),
		TokenID:       o.TokenID,
		Amount:        o.Amount,
		UnitPrice:     o.UnitPrice.String(),
		Royalties:     o.Royalties,
		Creator:       crypto.FormatAddress(o.Creator),
	}
}

type payoutView struct {
	Royalty string `json:"royalty"`
	Fee     string `json:"fee"`
	Issuer  string `json:"issuer"`
}

// valueRequest carries the native currency attached to a call. An empty value
// attaches nothing.
type valueRequest struct {
	Value string `json:"value"`
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

// callFor builds the marketplace call for the authenticated caller.
func callFor(w http.ResponseWriter, r *http.Request, value string) (marketplace.Call, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return marketplace.Call{}, false
	}
	amount, err := parseAmount(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return marketplace.Call{}, false
	}
	return marketplace.Call{Sender: caller, Value: amount}, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return 0, false
	}
	return id, true
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) ([20]byte, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", param, err))
		return [20]byte{}, false
	}
	return addr, true
}

func bodyAddress(w http.ResponseWriter, raw, field string) ([20]byte, bool) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", field, err))
		return [20]byte{}, false
	}
	return addr, true
}

// run executes a state-changing operation under the server lock and records
// its outcome.
func (s *Server) run(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := fn()
	outcome, _ := classify(err)
	observability.Marketplace().Observe(op, outcome, time.Since(start))
	return err
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, err := s.engine.Config()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	counter, err := s.engine.Counter()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	view := configView(cfg)
	view["counter"] = counter
	view["custody"] = crypto.FormatAddress(s.engine.Custody())
	writeJSON(w, http.StatusOK, view)
}

func configView(cfg marketplace.Config) map[string]any {
	return map[string]any{
		"manager":       crypto.FormatAddress(cfg.Manager),
		"fee_recipient": crypto.FormatAddress(cfg.FeeRecipient),
		"fee":           cfg.Fee,
		"paused":        cfg.Paused,
	}
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offers, err := s.engine.Offers()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	views := make([]offerView, 0, len(offers))
	for _, o := range offers {
		views = append(views, newOfferView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": views})
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	offer, err := s.engine.Offer(id)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) handleAllowed(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contract, ok := pathAddress(w, r, "contract")
	if !ok {
		return
	}
	allowed, err := s.engine.IsAllowed(contract)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contract": crypto.FormatAddress(contract), "allowed": allowed})
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	bal, err := s.bank.Balance(addr)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": crypto.FormatAddress(addr), "balance": bal.String()})
}

func (s *Server) ledger(w http.ResponseWriter, r *http.Request) (*fa2.Ledger, uint64, bool) {
	contract, ok := pathAddress(w, r, "contract")
	if !ok {
		return nil, 0, false
	}
	tokenID, err := strconv.ParseUint(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return nil, 0, false
	}
	ledger, found := s.tokens.Ledger(contract)
	if !found {
		writeError(w, http.StatusNotFound, "token contract not hosted")
		return nil, 0, false
	}
	return ledger, tokenID, true
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledger, tokenID, ok := s.ledger(w, r)
	if !ok {
		return
	}
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	bal, err := ledger.BalanceOf(owner, tokenID)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": crypto.FormatAddress(owner), "token_id": tokenID, "balance": bal})
}

// handleOperator grants or revokes the marketplace custody account's operator
// rights over one of the caller's tokens.
func (s *Server) handleOperator(w http.ResponseWriter, r *http.Request) {
	ledger, tokenID, ok := s.ledger(w, r)
	if !ok {
		return
	}
	var req struct {
		Approve bool `json:"approve"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	s.mu.Lock()
	var err error
	if req.Approve {
		err = ledger.AddOperator(caller, s.engine.Custody(), tokenID)
	} else {
		err = ledger.RemoveOperator(caller, s.engine.Custody(), tokenID)
	}
	s.mu.Unlock()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token_id": tokenID, "approved": req.Approve})
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenContract string `json:"token_contract"`
		TokenID       uint64 `json:"token_id"`
		Amount        uint64 `json:"amount"`
		UnitPrice     string `json:"unit_price"`
		Royalties     uint32 `json:"royalties"`
		Creator       string `json:"creator"`
		Value         string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	call, ok := callFor(w, r, req.Value)
	if !ok {
		return
	}
	contract, ok := bodyAddress(w, req.TokenContract, "token_contract")
	if !ok {
		return
	}
	creator, ok := bodyAddress(w, req.Creator, "creator")
	if !ok {
		return
	}
	price, err := parseAmount(req.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := marketplace.CreateOfferParams{
		TokenContract: contract,
		TokenID:       req.TokenID,
		Amount:        req.Amount,
		UnitPrice:     price,
		Royalties:     req.Royalties,
		Creator:       creator,
	}
	var id uint64
	if err := s.run("create_offer", func() error {
		var runErr error
		id, runErr = s.engine.CreateOffer(call, params)
		return runErr
	}); err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	call, ok := callFor(w, r, req.Value)
	if !ok {
		return
	}
	var payout marketplace.Payout
	if err := s.run("collect", func() error {
		var runErr error
		payout, runErr = s.engine.Collect(call, id)
		return runErr
	}); err != nil {
		writeOperationError(w, err)
		return
	}
	observability.Marketplace().RecordSale(payout.Royalty, payout.Fee, payout.Issuer)
	writeJSON(w, http.StatusOK, payoutView{
		Royalty: payout.Royalty.String(),
		Fee:     payout.Fee.String(),
		Issuer:  payout.Issuer.String(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	call, ok := callFor(w, r, req.Value)
	if !ok {
		return
	}
	if err := s.run("cancel_offer", func() error { return s.engine.CancelOffer(call, id) }); err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"cancelled": id})
}

func (s *Server) handleUpdateFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fee   uint32 `json:"fee"`
		Value string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	call, ok := callFor(w, r, req.Value)
	if !ok {
		return
	}
	s.admin(w, "update_fee", func() error { return s.engine.UpdateFee(call, req.Fee) })
}

func (s *Server) handleUpdateFeeRecipient(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, "update_fee_recipient", "fee_recipient", s.engine.UpdateFeeRecipient)
}

func (s *Server) handleUpdateManager(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, "update_manager", "manager", s.engine.UpdateManager)
}

func (s *Server) handleAddFA2(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, "add_fa2", "contract", s.engine.AddFA2)
}

func (s *Server) handleRemoveFA2(w http.ResponseWriter, r *http.Request) {
	s.adminAddress(w, r, "remove_fa2", "contract", s.engine.RemoveFA2)
}

func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused bool   `json:"paused"`
		Value  string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	call, ok := callFor(w, r, req.Value)
	if !ok {
		return
	}
	s.admin(w, "set_pause", func() error {
		if err := s.engine.SetPause(call, req.Paused); err != nil {
			return err
		}
		observability.Marketplace().SetPaused(req.Paused)
		return nil
	})
}

// adminAddress handles the administrative calls that take a single address.
func (s *Server) adminAddress(w http.ResponseWriter, r *http.Request, op, field string, fn func(marketplace.Call, [20]byte) error) {
	var req struct {
		Address string `json:"address"`
		Value   string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	call, ok := callFor(w, r, req.Value)
	if !ok {
		return
	}
	addr, ok := bodyAddress(w, req.Address, field)
	if !ok {
		return
	}
	s.admin(w, op, func() error { return fn(call, addr) })
}

func (s *Server) admin(w http.ResponseWriter, op string, fn func() error) {
	if err := s.run(op, fn); err != nil {
		writeOperationError(w, err)
		return
	}
	s.mu.RLock()
	cfg, err := s.engine.Config()
	s.mu.RUnlock()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configView(cfg))
}
