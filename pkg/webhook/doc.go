// Package webhook implements HTTP delivery channels: generic webhooks, where
// the recipient address is the target URL, and chat integrations such as Slack
// and Microsoft Teams that post to a fixed endpoint.
//
// Each request is a JSON POST. With a secret configured the body is signed
// with HMAC-SHA256 over "<unix timestamp>.<body>" and the result is sent in
// the X-Webhook-Signature, X-Webhook-Timestamp and X-Webhook-ID headers.
// Receivers verify with VerifySignature:
//
//	sig, err := webhook.ExtractSignatureHeaders(r.Header)
//	if err != nil {
//	    return err
//	}
//	if err := webhook.VerifySignature(secret, body, sig, 5*time.Minute, time.Now()); err != nil {
//	    return err
//	}
//
// Retries are owned by the delivery engine. The channel only classifies
// failures: 4xx responses other than 408, 425 and 429 wrap ErrPermanentFailure,
// everything else wraps ErrTemporaryFailure or ErrTimeout.
//
// Every endpoint has its own CircuitBreaker. After consecutive failures the
// breaker opens and Deliver returns ErrCircuitOpen without a request until the
// recovery timeout passes. For fixed-endpoint channels an open breaker also
// makes Healthy report false.
//
// # Usage
//
//	var cfg webhook.Config
//	config.MustLoad(&cfg)
//	for _, ch := range cfg.Channels() {
//	    _ = engine.RegisterChannel(ch)
//	}
package webhook
