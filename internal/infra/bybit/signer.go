package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Signer authenticates stream and REST requests with the account's API key.
// Keys are kept as []byte so Wipe can clear them.
type Signer struct {
	apiKey    []byte
	apiSecret []byte
	now       func() time.Time
}

// NewSigner creates a signer for the given credentials.
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{
		apiKey:    []byte(apiKey),
		apiSecret: []byte(apiSecret),
		now:       time.Now,
	}
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	clear(s.apiKey)
	clear(s.apiSecret)
}

// AuthFrame builds the stream login frame. The signature covers
// "GET/realtime" followed by the expiry in milliseconds.
func (s *Signer) AuthFrame() ([]byte, error) {
	expires := s.now().UnixMilli() + authTTLMillis
	sig := s.sign("GET/realtime" + strconv.FormatInt(expires, 10))
	return json.Marshal(request{
		Op:   opAuth,
		Args: []any{string(s.apiKey), expires, sig},
	})
}

// SignRequest sets the v5 REST auth headers. payload is the raw query
// string for GET and the JSON body for POST.
func (s *Signer) SignRequest(h http.Header, payload string) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	h.Set("X-BAPI-API-KEY", string(s.apiKey))
	h.Set("X-BAPI-TIMESTAMP", ts)
	h.Set("X-BAPI-RECV-WINDOW", recvWindow)
	h.Set("X-BAPI-SIGN", s.sign(ts+string(s.apiKey)+recvWindow+payload))
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.apiSecret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
