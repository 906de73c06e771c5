package webhook_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/webhook"
)

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	secret := "s3cret"
	payload := []byte(`{"id":"n-1"}`)
	now := time.Unix(1_700_000_000, 0)

	sig, err := webhook.SignPayload(secret, payload, now)
	require.NoError(t, err)
	assert.Len(t, sig.Signature, 64)
	assert.Equal(t, now.Unix(), sig.Timestamp)
	assert.NotEmpty(t, sig.ID)

	tests := []struct {
		name    string
		secret  string
		payload []byte
		sig     webhook.SignatureHeaders
		maxAge  time.Duration
		now     time.Time
		wantErr error
	}{
		{name: "valid", secret: secret, payload: payload, sig: sig, maxAge: time.Minute, now: now},
		{name: "no max age", secret: secret, payload: payload, sig: sig, now: now.Add(24 * time.Hour)},
		{name: "wrong secret", secret: "other", payload: payload, sig: sig, now: now, wantErr: webhook.ErrInvalidSignature},
		{name: "tampered payload", secret: secret, payload: []byte(`{"id":"n-2"}`), sig: sig, now: now, wantErr: webhook.ErrInvalidSignature},
		{name: "expired", secret: secret, payload: payload, sig: sig, maxAge: time.Minute, now: now.Add(2 * time.Minute), wantErr: webhook.ErrInvalidSignature},
		{name: "future", secret: secret, payload: payload, sig: sig, maxAge: time.Minute, now: now.Add(-2 * time.Minute), wantErr: webhook.ErrInvalidSignature},
		{name: "missing signature", secret: secret, payload: payload, sig: webhook.SignatureHeaders{Timestamp: sig.Timestamp}, now: now, wantErr: webhook.ErrInvalidSignature},
		{name: "empty secret", payload: payload, sig: sig, now: now, wantErr: webhook.ErrInvalidConfiguration},
		{name: "empty payload", secret: secret, sig: sig, now: now, wantErr: webhook.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := webhook.VerifySignature(tt.secret, tt.payload, tt.sig, tt.maxAge, tt.now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignPayload_Errors(t *testing.T) {
	t.Parallel()

	_, err := webhook.SignPayload("", []byte("x"), time.Now())
	assert.ErrorIs(t, err, webhook.ErrInvalidConfiguration)

	_, err = webhook.SignPayload("s", nil, time.Now())
	assert.ErrorIs(t, err, webhook.ErrInvalidPayload)
}

func TestExtractSignatureHeaders(t *testing.T) {
	t.Parallel()

	sig, err := webhook.SignPayload("s", []byte("body"), time.Now())
	require.NoError(t, err)

	h := http.Header{}
	sig.Apply(h)

	got, err := webhook.ExtractSignatureHeaders(h)
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	lower := http.Header{}
	lower.Set("x-webhook-signature", sig.Signature)
	lower.Set("x-webhook-timestamp", strconv.FormatInt(sig.Timestamp, 10))
	got, err = webhook.ExtractSignatureHeaders(lower)
	require.NoError(t, err)
	assert.Equal(t, sig.Signature, got.Signature)

	bad := http.Header{}
	bad.Set(webhook.HeaderSignature, "abc")
	bad.Set(webhook.HeaderTimestamp, "yesterday")
	_, err = webhook.ExtractSignatureHeaders(bad)
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)

	_, err = webhook.ExtractSignatureHeaders(http.Header{})
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}
