package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/dulceria/mayorista/internal/domain/auth"
	"github.com/dulceria/mayorista/internal/domain/order"
)

// Header names for the two authentication channels: api_key identifies staff,
// X-Customer-ID identifies a returning storefront customer session.
const (
	apiKeyHeader     = "api_key"
	customerIDHeader = "X-Customer-ID"
)

// actorFromRequest resolves the request's actor. A valid api_key header wins
// and yields a staff actor; otherwise the customer session header (possibly
// empty for guest checkout) yields a customer actor. The returned bool is
// false only when an api_key was presented but failed verification.
func (h *Handler) actorFromRequest(r *http.Request) (order.Actor, bool) {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		info, ok := h.verifyAPIKey(r, key)
		if !ok {
			return order.Actor{}, false
		}
		return order.Actor{ID: info.ID, Role: order.RoleStaff}, true
	}

	return order.Actor{
		ID:   r.Header.Get(customerIDHeader),
		Role: order.RoleCustomer,
	}, true
}

// verifyAPIKey hashes the presented key with the HMAC pepper, looks it up,
// and confirms the stored hash in constant time to prevent timing
// side-channels.
func (h *Handler) verifyAPIKey(r *http.Request, key string) (*auth.APIKeyInfo, bool) {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return nil, false
	}

	storedBytes, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, false
	}
	if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
		return nil, false
	}

	return info, true
}
