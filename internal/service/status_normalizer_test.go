package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"eventpay/internal/model"
)

func TestStatusNormalizer_Normalize(t *testing.T) {
	n := NewStatusNormalizer()

	tests := []struct {
		name          string
		payload       string
		expectedState model.PaymentRecordStatus
		expectedToken string
	}{
		{
			name:          "top-level success",
			payload:       `{"status":"success"}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "success",
		},
		{
			name:          "top-level gateway code 000",
			payload:       `{"status":"000"}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "000",
		},
		{
			name:          "numeric status 200",
			payload:       `{"status":200}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "200",
		},
		{
			name:          "payment_status paid with mixed case and whitespace",
			payload:       `{"payment_status":"  PAID "}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "paid",
		},
		{
			name:          "nested data status declined",
			payload:       `{"data":{"status":"declined"}}`,
			expectedState: model.PaymentRecordStatusFailed,
			expectedToken: "declined",
		},
		{
			name:          "negative numeric status fails",
			payload:       `{"status":"-13"}`,
			expectedState: model.PaymentRecordStatusFailed,
			expectedToken: "-13",
		},
		{
			name:          "could_not_perform_transaction fails",
			payload:       `{"status":"could_not_perform_transaction"}`,
			expectedState: model.PaymentRecordStatusFailed,
			expectedToken: "could_not_perform_transaction",
		},
		{
			name:          "unknown token defaults to pending",
			payload:       `{"status":"queued"}`,
			expectedState: model.PaymentRecordStatusPending,
			expectedToken: "queued",
		},
		{
			name:          "empty payload defaults to pending",
			payload:       `{}`,
			expectedState: model.PaymentRecordStatusPending,
			expectedToken: "",
		},
		{
			name:          "is_confirmed flag outranks failed token",
			payload:       `{"is_confirmed":true,"status":"failed"}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "is_confirmed",
		},
		{
			name:          "is_failed flag outranks success token",
			payload:       `{"data":{"is_failed":true},"status":"success"}`,
			expectedState: model.PaymentRecordStatusFailed,
			expectedToken: "is_failed",
		},
		{
			name:          "false flags fall through to tokens",
			payload:       `{"is_confirmed":false,"status":"successful"}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "successful",
		},
		{
			name:          "collection description success confirms",
			payload:       `{"data":{"collection":{"data":{"description":"Success"}}}}`,
			expectedState: model.PaymentRecordStatusCompleted,
			expectedToken: "success",
		},
		{
			// Transport-level acceptance with the money still in flight: the
			// nested description pins pending despite the outer success.
			name:          "awaiting description pins pending over outer success",
			payload:       `{"status":"success","data":{"collection":{"data":{"description":"Transaction initiated, awaiting processing"}}}}`,
			expectedState: model.PaymentRecordStatusPending,
			expectedToken: "transaction initiated, awaiting processing",
		},
		{
			name:          "collection status used when description absent",
			payload:       `{"data":{"collection":{"data":{"status":"-200"}}}}`,
			expectedState: model.PaymentRecordStatusFailed,
			expectedToken: "-200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]interface{}
			assert.NoError(t, json.Unmarshal([]byte(tt.payload), &payload))

			status, token := n.Normalize(payload)
			assert.Equal(t, tt.expectedState, status)
			assert.Equal(t, tt.expectedToken, token)
		})
	}
}

func TestStatusNormalizer_NormalizeRaw(t *testing.T) {
	n := NewStatusNormalizer()

	t.Run("empty raw is pending", func(t *testing.T) {
		status, token := n.NormalizeRaw(nil)
		assert.Equal(t, model.PaymentRecordStatusPending, status)
		assert.Empty(t, token)
	})

	t.Run("undecodable raw is pending", func(t *testing.T) {
		status, _ := n.NormalizeRaw(json.RawMessage(`not json`))
		assert.Equal(t, model.PaymentRecordStatusPending, status)
	})

	t.Run("valid raw is classified", func(t *testing.T) {
		status, token := n.NormalizeRaw(json.RawMessage(`{"status":"confirmed"}`))
		assert.Equal(t, model.PaymentRecordStatusCompleted, status)
		assert.Equal(t, "confirmed", token)
	})
}

func TestStatusNormalizer_CustomTokens(t *testing.T) {
	n := NewStatusNormalizer()
	n.ConfirmedTokens["settled"] = true

	status, _ := n.Normalize(map[string]interface{}{"status": "settled"})
	assert.Equal(t, model.PaymentRecordStatusCompleted, status)
}
