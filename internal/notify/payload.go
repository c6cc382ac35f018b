package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahl-labs/lotteryd/internal/auth"
	"github.com/ahl-labs/lotteryd/internal/model"
)

// Envelope is the wire form of a broadcast event; Type distinguishes
// epoch-open announcements from settlement results. When a signer is
// configured the signature covers the marshaled Result bytes, so
// subscribers verify the payload without trusting the relay.
type Envelope struct {
	Type        string          `json:"type"`
	InstanceID  string          `json:"instance_id"`
	PublishedAt time.Time       `json:"published_at"`
	Result      json.RawMessage `json:"result"`
	KeyID       string          `json:"key_id,omitempty"`
	Signature   string          `json:"signature,omitempty"`
}

// ResultPayload is the settlement summary inside an envelope.
type ResultPayload struct {
	EpochID      string    `json:"epoch_id"`
	Question     string    `json:"question"`
	Category     string    `json:"category"`
	Answer       string    `json:"answer,omitempty"`
	Tier         int       `json:"tier"`
	HashValue    uint16    `json:"hash_value"`
	WinnerBetID  string    `json:"winner_bet_id,omitempty"`
	WinnerID     string    `json:"winner_id,omitempty"`
	WinnerName   string    `json:"winner_name,omitempty"`
	PrizeSats    int64     `json:"prize_sats"`
	PoolSats     int64     `json:"pool_sats"`
	Participants int       `json:"participants"`
	Digest       string    `json:"digest"`
	SettledAt    time.Time `json:"settled_at"`
}

// EpochPayload announces a newly opened round.
type EpochPayload struct {
	EpochID  string    `json:"epoch_id"`
	Question string    `json:"question"`
	Category string    `json:"category"`
	OpenedAt time.Time `json:"opened_at"`
}

// NewEpochEnvelope builds the epoch-open announcement, signing it when
// signer is non-nil.
func NewEpochEnvelope(instanceID string, e model.Epoch, signer *auth.Signer) (Envelope, error) {
	return seal("epoch_open", instanceID, EpochPayload{
		EpochID:  e.ID,
		Question: e.Topic.Question,
		Category: e.Topic.Category,
		OpenedAt: e.OpenedAt,
	}, signer)
}

// NewEnvelope builds a broadcast envelope from a settlement result,
// signing it when signer is non-nil.
func NewEnvelope(instanceID string, res model.SettlementResult, signer *auth.Signer) (Envelope, error) {
	payload := ResultPayload{
		EpochID:      res.EpochID,
		Question:     res.Topic.Question,
		Category:     res.Topic.Category,
		Answer:       res.Topic.Answer,
		Tier:         res.Tier,
		HashValue:    res.HashValue,
		WinnerBetID:  res.WinnerBetID,
		WinnerID:     res.WinnerAgentID,
		WinnerName:   res.WinnerName,
		PrizeSats:    res.Prize,
		PoolSats:     res.TotalPool,
		Participants: res.Participants,
		Digest:       res.Digest,
		SettledAt:    res.SettledAt,
	}

	return seal("settlement", instanceID, payload, signer)
}

// seal marshals the payload into a typed envelope and signs it.
func seal(kind, instanceID string, payload any, signer *auth.Signer) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	env := Envelope{
		Type:        kind,
		InstanceID:  instanceID,
		PublishedAt: time.Now(),
		Result:      raw,
	}

	if signer != nil {
		sig, err := signer.Sign(raw)
		if err != nil {
			return Envelope{}, err
		}
		env.KeyID = signer.KeyID
		env.Signature = sig
	}

	return env, nil
}
