package feed

import (
	"encoding/json"
	"testing"
)

var testCreds = Credentials{Key: "k", Secret: "s", Passphrase: "p"}

func decodeFrame(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func TestProtocolFor_Unknown(t *testing.T) {
	if _, err := ProtocolFor(Variant("bogus")); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestSubscribeFrame_Clob(t *testing.T) {
	p, _ := ProtocolFor(VariantClob)

	frame := decodeFrame(t, p.SubscribeFrame([]string{"a", "b"}, Credentials{}))
	if frame["type"] != "market" {
		t.Fatalf("type: want market, got %v", frame["type"])
	}
	ids, ok := frame["assets_ids"].([]any)
	if !ok || len(ids) != 2 {
		t.Fatalf("assets_ids: got %v", frame["assets_ids"])
	}
	if _, hasAuth := frame["auth"]; hasAuth {
		t.Fatal("anonymous clob frame must not carry auth")
	}

	// With credentials configured, the triple rides along.
	frame = decodeFrame(t, p.SubscribeFrame([]string{"a"}, testCreds))
	auth, ok := frame["auth"].(map[string]any)
	if !ok {
		t.Fatalf("auth: got %v", frame["auth"])
	}
	if auth["key"] != "k" || auth["secret"] != "s" || auth["passphrase"] != "p" {
		t.Fatalf("auth triple: got %v", auth)
	}
}

func TestSubscribeFrame_Legacy(t *testing.T) {
	p, _ := ProtocolFor(VariantLegacy)

	frame := decodeFrame(t, p.SubscribeFrame([]string{"a"}, testCreds))
	if frame["type"] != "MARKET" {
		t.Fatalf("type: want MARKET, got %v", frame["type"])
	}
	if _, ok := frame["asset_ids"]; !ok {
		t.Fatalf("asset_ids missing: %v", frame)
	}
}

func TestSubscribeFrame_Gateway(t *testing.T) {
	p, _ := ProtocolFor(VariantGateway)

	frame := decodeFrame(t, p.SubscribeFrame([]string{"a"}, testCreds))
	if frame["type"] != "subscribe" {
		t.Fatalf("type: want subscribe, got %v", frame["type"])
	}
	if frame["channel"] != "market" {
		t.Fatalf("channel: want market, got %v", frame["channel"])
	}
	if _, ok := frame["markets"]; !ok {
		t.Fatalf("markets missing: %v", frame)
	}
	if _, hasAuth := frame["auth"]; hasAuth {
		t.Fatal("gateway frames never carry auth")
	}
}

func TestUnsubscribeFrame(t *testing.T) {
	gateway, _ := ProtocolFor(VariantGateway)
	raw, ok := gateway.UnsubscribeFrame([]string{"a"})
	if !ok {
		t.Fatal("gateway dialect should support unsubscribe")
	}
	frame := decodeFrame(t, raw)
	if frame["type"] != "unsubscribe" {
		t.Fatalf("type: want unsubscribe, got %v", frame["type"])
	}

	clob, _ := ProtocolFor(VariantClob)
	if _, ok := clob.UnsubscribeFrame([]string{"a"}); ok {
		t.Fatal("clob dialect has no unsubscribe frame")
	}
}
