package models

import (
	"encoding/json"
	"testing"
)

func TestResponseWireFormat(t *testing.T) {
	raw := `{
		"jsonCode": 200,
		"message": "ok",
		"challenge": {"type": "authentication", "payload": "nonce"},
		"publicKeys": ["k1"],
		"transactionsPending3DSReview": {"T1": {"amount": 1999, "currency": "USD", "merchant": "Acme"}}
	}`

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.JSONCode != 200 || resp.Message != "ok" {
		t.Errorf("envelope fields not decoded: %+v", resp)
	}
	if resp.Challenge == nil || resp.Challenge.Type != ChallengeTypeAuthentication || resp.Challenge.Payload != "nonce" {
		t.Errorf("challenge not decoded: %+v", resp.Challenge)
	}
	if len(resp.PublicKeys) != 1 || resp.PublicKeys[0] != "k1" {
		t.Errorf("public keys not decoded: %v", resp.PublicKeys)
	}
	review, ok := resp.TransactionsPendingReview["T1"]
	if !ok || review.Amount != 1999 || review.Currency != "USD" || review.Merchant != "Acme" {
		t.Errorf("pending reviews not decoded: %+v", resp.TransactionsPendingReview)
	}
}

func TestChallengeOmitsZeroExpiry(t *testing.T) {
	raw, err := json.Marshal(Challenge{Type: ChallengeTypeRegistration, Payload: "nonce"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded["expiresAt"]; present {
		t.Errorf("zero expiry must be omitted: %s", raw)
	}
}
