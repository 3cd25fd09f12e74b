package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Variant selects one of the feed's observed protocol dialects. The dialects
// differ in subscribe-frame shape, auth placement, and reconnect constants;
// everything else is handled uniformly by the dispatcher.
type Variant string

const (
	// VariantClob is the direct CLOB market channel: type "market" with
	// "assets_ids", optional per-message auth, no unsubscribe frame.
	VariantClob Variant = "clob"
	// VariantLegacy is the older upstream dialect: type "MARKET" with
	// "asset_ids" and mandatory per-message auth.
	VariantLegacy Variant = "legacy"
	// VariantGateway is the channel-based gateway dialect: type
	// "subscribe"/"unsubscribe" with channel "market" and "markets".
	VariantGateway Variant = "gateway"
)

// Credentials is the API key triple consumed by authenticated subscribe
// frames. The zero value means anonymous operation.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// Empty reports whether no credentials are configured.
func (c Credentials) Empty() bool {
	return c.Key == "" && c.Secret == "" && c.Passphrase == ""
}

type authPayload struct {
	Key        string `json:"key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Protocol describes one variant's wire behavior plus its default tuning.
// Backoff base, heartbeat interval, and max attempts are configuration, not
// hard-coded behavior; these defaults apply when the config leaves them zero.
type Protocol struct {
	Variant Variant

	subscribeType   string
	unsubscribeType string // empty when the dialect has no unsubscribe frame
	assetField      string
	channel         string

	// perMessageAuth embeds the credential triple in subscribe frames when
	// credentials are configured.
	perMessageAuth bool
	// needsAuth marks dialects whose subscriptions are rejected without
	// credentials; combined with allowsAnonymous it decides whether an
	// unauthenticated subscribe is sent or withheld.
	needsAuth       bool
	allowsAnonymous bool

	DefaultBackoffBase time.Duration
	DefaultMaxAttempts int
	DefaultHeartbeat   time.Duration
}

var protocols = map[Variant]Protocol{
	VariantClob: {
		Variant:            VariantClob,
		subscribeType:      "market",
		assetField:         "assets_ids",
		perMessageAuth:     true,
		allowsAnonymous:    true,
		DefaultBackoffBase: time.Second,
		DefaultMaxAttempts: 5,
		DefaultHeartbeat:   10 * time.Second,
	},
	VariantLegacy: {
		Variant:            VariantLegacy,
		subscribeType:      "MARKET",
		assetField:         "asset_ids",
		perMessageAuth:     true,
		needsAuth:          true,
		DefaultBackoffBase: 5 * time.Second,
		DefaultMaxAttempts: 10,
		DefaultHeartbeat:   30 * time.Second,
	},
	VariantGateway: {
		Variant:            VariantGateway,
		subscribeType:      "subscribe",
		unsubscribeType:    "unsubscribe",
		assetField:         "markets",
		channel:            "market",
		allowsAnonymous:    true,
		DefaultBackoffBase: 5 * time.Second,
		DefaultMaxAttempts: 10,
		DefaultHeartbeat:   30 * time.Second,
	},
}

// ProtocolFor returns the protocol table entry for v.
func ProtocolFor(v Variant) (Protocol, error) {
	p, ok := protocols[v]
	if !ok {
		return Protocol{}, fmt.Errorf("feed: unknown protocol variant %q", v)
	}
	return p, nil
}

// SubscribeFrame builds the outbound subscribe message for the given asset
// IDs. Credentials are embedded only on per-message-auth dialects and only
// when configured.
func (p Protocol) SubscribeFrame(assetIDs []string, creds Credentials) []byte {
	frame := map[string]any{
		"type":       p.subscribeType,
		p.assetField: assetIDs,
	}
	if p.channel != "" {
		frame["channel"] = p.channel
	}
	if p.perMessageAuth && !creds.Empty() {
		frame["auth"] = authPayload{
			Key:        creds.Key,
			Secret:     creds.Secret,
			Passphrase: creds.Passphrase,
		}
	}
	data, _ := json.Marshal(frame)
	return data
}

// UnsubscribeFrame builds the outbound unsubscribe message, or returns false
// on dialects that have none (teardown is then local only).
func (p Protocol) UnsubscribeFrame(assetIDs []string) ([]byte, bool) {
	if p.unsubscribeType == "" {
		return nil, false
	}
	frame := map[string]any{
		"type":       p.unsubscribeType,
		p.assetField: assetIDs,
	}
	if p.channel != "" {
		frame["channel"] = p.channel
	}
	data, _ := json.Marshal(frame)
	return data, true
}
