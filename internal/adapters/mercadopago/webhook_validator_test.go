package mercadopago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

func signed(secret, dataID, requestID, ts string) string {
	return "ts=" + ts + ",v1=" + calculateHMAC(buildManifest(dataID, requestID, ts), secret)
}

func TestValidateSignature(t *testing.T) {
	v := NewWebhookValidator("s3cret", true)

	good := signed("s3cret", "123456", "req-1", "1700000000")
	assert.True(t, v.ValidateSignature(good, "req-1", "123456"))
	assert.False(t, v.ValidateSignature(good, "req-2", "123456"))
	assert.False(t, v.ValidateSignature(good, "req-1", "999"))
	assert.False(t, v.ValidateSignature(signed("other", "123456", "req-1", "1700000000"), "req-1", "123456"))
	assert.False(t, v.ValidateSignature("garbage", "req-1", "123456"))
	assert.False(t, v.ValidateSignature("", "req-1", "123456"))
}

func TestBuildManifest(t *testing.T) {
	assert.Equal(t, "id:1;request-id:r;ts:2;", buildManifest("1", "r", "2"))
	assert.Equal(t, "id:1;ts:2;", buildManifest("1", "", "2"))
}

func TestParseSignatureHeader(t *testing.T) {
	ts, hash := parseSignatureHeader("ts=1700000000, v1=abcdef")
	assert.Equal(t, "1700000000", ts)
	assert.Equal(t, "abcdef", hash)
}

func TestAuthenticate(t *testing.T) {
	creds := ports.WebhookCredentials{
		Signature: signed("s3cret", "42", "req-9", "1"),
		RequestID: "req-9",
		DataID:    "42",
	}

	assert.NoError(t, NewWebhookValidator("s3cret", true).Authenticate(creds))

	err := NewWebhookValidator("wrong", true).Authenticate(creds)
	require.Error(t, err)
	assert.Equal(t, domain.KindWebhookAuth, domain.KindOf(err))

	err = NewWebhookValidator("", true).Authenticate(creds)
	assert.Equal(t, domain.KindWebhookAuth, domain.KindOf(err))

	assert.NoError(t, NewWebhookValidator("", false).Authenticate(ports.WebhookCredentials{}))
}

func TestWebhookDecoder(t *testing.T) {
	ev, err := WebhookDecoder{}.Decode([]byte(`{"id":12345,"type":"payment","action":"payment.updated","date_created":"2025-03-10T12:00:00Z","data":{"id":"987654"}}`))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "987654", ev.ExternalChargeID)
	assert.Equal(t, "12345", ev.EventID)
	assert.Empty(t, ev.RawStatus)
	assert.Equal(t, 2025, ev.EventTimestamp.Year())

	ev, err = WebhookDecoder{}.Decode([]byte(`{"type":"merchant_order","data":{"id":"1"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev)

	_, err = WebhookDecoder{}.Decode([]byte(`{"type":"payment","data":{}}`))
	assert.Equal(t, domain.KindMalformedPayload, domain.KindOf(err))

	_, err = WebhookDecoder{}.Decode([]byte(`not json`))
	assert.Equal(t, domain.KindMalformedPayload, domain.KindOf(err))
}
