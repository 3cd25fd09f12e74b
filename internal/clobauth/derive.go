package clobauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Credentials is the API key triple returned by credential derivation.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// Deriver exchanges a wallet attestation for API credentials over the CLOB
// REST API.
type Deriver struct {
	host   string
	signer *Signer
	http   *http.Client
	log    *zap.Logger

	nowFunc func() time.Time // injectable clock for testing
}

// NewDeriver creates a credential deriver against the given CLOB host.
func NewDeriver(host string, signer *Signer, timeout time.Duration, log *zap.Logger) *Deriver {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Deriver{
		host:    strings.TrimRight(host, "/"),
		signer:  signer,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		nowFunc: time.Now,
	}
}

// deriveResponse tolerates both field spellings the endpoint has used.
type deriveResponse struct {
	Key        string `json:"key"`
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Derive signs a wallet attestation and asks the CLOB for the API key triple
// bound to that wallet.
func (d *Deriver) Derive(ctx context.Context) (Credentials, error) {
	if d.signer == nil {
		return Credentials{}, ErrNoKey
	}

	ts := strconv.FormatInt(d.nowFunc().Unix(), 10)
	const nonce = 0

	sig, err := d.signer.SignAttestation(ts, nonce)
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.host+"/auth/derive-api-key", nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("clobauth: build request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", d.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", strconv.Itoa(nonce))

	resp, err := d.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("clobauth: derive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("clobauth: derive request: unexpected status %s", resp.Status)
	}

	var body deriveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Credentials{}, fmt.Errorf("clobauth: decode response: %w", err)
	}

	key := body.Key
	if key == "" {
		key = body.APIKey
	}
	if key == "" || body.Secret == "" || body.Passphrase == "" {
		return Credentials{}, fmt.Errorf("clobauth: derive response missing fields")
	}

	d.log.Info("clobauth: derived API credentials",
		zap.String("address", d.signer.Address().Hex()))

	return Credentials{Key: key, Secret: body.Secret, Passphrase: body.Passphrase}, nil
}
