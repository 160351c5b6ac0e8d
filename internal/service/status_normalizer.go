package service

import (
	"encoding/json"
	"strconv"
	"strings"

	"eventpay/internal/model"
)

// StatusNormalizer maps heterogeneous gateway payloads onto the canonical
// three-state status. Gateways disagree about where the status lives and what
// it is called; the normalizer probes a fixed, ordered list of extractors and
// classifies the first signal it finds.
//
// Token sets are fields rather than constants: the "a success-shaped reply can
// still mean awaiting processing" rule is string matching against wording the
// upstream gateway does not document, so deployments can override it.
type StatusNormalizer struct {
	ConfirmedTokens map[string]bool
	FailedTokens    map[string]bool
}

// NewStatusNormalizer creates a normalizer with the default token sets.
func NewStatusNormalizer() *StatusNormalizer {
	return &StatusNormalizer{
		ConfirmedTokens: map[string]bool{
			"success":    true,
			"successful": true,
			"confirmed":  true,
			"paid":       true,
			"completed":  true,
			"200":        true,
			"000":        true,
		},
		FailedTokens: map[string]bool{
			"failed":                        true,
			"declined":                      true,
			"cancelled":                     true,
			"canceled":                      true,
			"error":                         true,
			"rejected":                      true,
			"-200":                          true,
			"could_not_perform_transaction": true,
		},
	}
}

// Normalize classifies a decoded gateway payload. The second return value is
// the lowercase trimmed token the decision was based on, for logging.
//
// Precedence: explicit boolean flags outrank string tokens; the nested
// collection block outranks transport-level status fields. A collection
// description that is neither success nor a failure token pins the result to
// pending even when the outer reply says "success", because that only means
// the gateway accepted the request while the money has not moved yet.
func (n *StatusNormalizer) Normalize(payload map[string]interface{}) (model.PaymentRecordStatus, string) {
	if payload == nil {
		return model.PaymentRecordStatusPending, ""
	}

	if status, token, ok := probeBooleanFlags(payload); ok {
		return status, token
	}

	if collection, ok := collectionData(payload); ok {
		if desc, ok := stringField(collection, "description"); ok {
			token := canonToken(desc)
			switch {
			case token == "success":
				return model.PaymentRecordStatusCompleted, token
			case n.isFailedToken(token):
				return model.PaymentRecordStatusFailed, token
			default:
				return model.PaymentRecordStatusPending, token
			}
		}
		if status, ok := stringishField(collection, "status"); ok {
			return n.classifyToken(status)
		}
	}

	for _, probe := range []func(map[string]interface{}) (string, bool){
		probeDataStatus,
		probeTopLevel("payment_status"),
		probeTopLevel("status"),
	} {
		if token, ok := probe(payload); ok {
			return n.classifyToken(token)
		}
	}

	return model.PaymentRecordStatusPending, ""
}

// NormalizeRaw decodes a stored raw payload and classifies it. An empty or
// undecodable payload is pending.
func (n *StatusNormalizer) NormalizeRaw(raw json.RawMessage) (model.PaymentRecordStatus, string) {
	if len(raw) == 0 {
		return model.PaymentRecordStatusPending, ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return model.PaymentRecordStatusPending, ""
	}
	return n.Normalize(payload)
}

func (n *StatusNormalizer) classifyToken(value string) (model.PaymentRecordStatus, string) {
	token := canonToken(value)
	switch {
	case n.ConfirmedTokens[token]:
		return model.PaymentRecordStatusCompleted, token
	case n.isFailedToken(token):
		return model.PaymentRecordStatusFailed, token
	default:
		return model.PaymentRecordStatusPending, token
	}
}

func (n *StatusNormalizer) isFailedToken(token string) bool {
	if n.FailedTokens[token] {
		return true
	}
	// Any negative numeric-looking status is a failure code.
	return isNegativeNumeric(token)
}

func canonToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isNegativeNumeric(token string) bool {
	if len(token) < 2 || token[0] != '-' {
		return false
	}
	for _, c := range token[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// probeBooleanFlags checks is_confirmed / is_failed at the top level and one
// level down under data. Flags are the gateway saying it outright, so they win
// over any string token.
func probeBooleanFlags(payload map[string]interface{}) (model.PaymentRecordStatus, string, bool) {
	scopes := []map[string]interface{}{payload}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		scopes = append(scopes, data)
	}
	for _, scope := range scopes {
		if v, ok := scope["is_confirmed"].(bool); ok && v {
			return model.PaymentRecordStatusCompleted, "is_confirmed", true
		}
		if v, ok := scope["is_failed"].(bool); ok && v {
			return model.PaymentRecordStatusFailed, "is_failed", true
		}
	}
	return model.PaymentRecordStatusPending, "", false
}

// collectionData digs out the gateway-specific data.collection.data block.
func collectionData(payload map[string]interface{}) (map[string]interface{}, bool) {
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	collection, ok := data["collection"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	inner, ok := collection["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return inner, true
}

func probeDataStatus(payload map[string]interface{}) (string, bool) {
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		return "", false
	}
	return stringishField(data, "status")
}

func probeTopLevel(key string) func(map[string]interface{}) (string, bool) {
	return func(payload map[string]interface{}) (string, bool) {
		return stringishField(payload, key)
	}
}

func stringField(scope map[string]interface{}, key string) (string, bool) {
	v, ok := scope[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// stringishField reads a field that some gateways send as a string and others
// as a bare number (status codes like 200 or -200).
func stringishField(scope map[string]interface{}, key string) (string, bool) {
	switch v := scope[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
