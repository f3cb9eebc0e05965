package asaas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

func TestTokenAuthenticator(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		production bool
		received   string
		wantErr    bool
	}{
		{"matching token", "secret", true, "secret", false},
		{"wrong token", "secret", true, "nope", true},
		{"missing token", "secret", false, "", true},
		{"no secret in development accepts", "", false, "", false},
		{"no secret in production rejects", "", true, "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTokenAuthenticator(tt.configured, tt.production).
				Authenticate(ports.WebhookCredentials{Token: tt.received})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.KindWebhookAuth, domain.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWebhookDecoder(t *testing.T) {
	body := []byte(`{"id":"evt_1","event":"PAYMENT_CONFIRMED","dateCreated":"2025-03-10 12:00:00","payment":{"id":"pay_1","status":"CONFIRMED","externalReference":"plan_p_user_u"}}`)

	ev, err := WebhookDecoder{}.Decode(body)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, "pay_1", ev.ExternalChargeID)
	assert.Equal(t, "CONFIRMED", ev.RawStatus)
	assert.Equal(t, 2025, ev.EventTimestamp.Year())
}

func TestWebhookDecoder_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"not json":          `{`,
		"no event":          `{"payment":{"id":"pay_1","status":"PENDING"}}`,
		"payment missing":   `{"event":"PAYMENT_RECEIVED"}`,
		"status missing":    `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1"}}`,
		"charge id missing": `{"event":"PAYMENT_RECEIVED","payment":{"status":"RECEIVED"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := WebhookDecoder{}.Decode([]byte(body))
			require.Error(t, err)
			assert.Equal(t, domain.KindMalformedPayload, domain.KindOf(err))
		})
	}
}

func TestWebhookDecoder_IgnoresNonPaymentEvents(t *testing.T) {
	ev, err := WebhookDecoder{}.Decode([]byte(`{"event":"TRANSFER_DONE","transfer":{"id":"tr_1"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev)
}
