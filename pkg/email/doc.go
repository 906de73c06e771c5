// Package email implements the email delivery channel.
//
// The package is built around the EmailSender interface so providers can be
// swapped without touching the pipeline:
//   - NewPostmarkClient sends through Postmark with open and link tracking
//   - DevSender writes each email to disk for local development
//
// Channel adapts an EmailSender to delivery.Handler. The Postmark message id
// becomes the attempt's ExternalID, which is how ParsePostmarkWebhook receipts
// are correlated back to attempts.
//
// # Usage
//
//	var cfg email.Config
//	config.MustLoad(&cfg)
//	ch, err := email.NewChannelFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	_ = engine.RegisterChannel(ch)
//
// Receiving Postmark webhooks:
//
//	receipt, err := email.ParsePostmarkWebhook(body)
//	if err != nil {
//	    return err
//	}
//	_, _, err = engine.Delivery().RecordReceipt(ctx, receipt)
//
// # Error Handling
//
// Sentinel errors: ErrInvalidConfig for bad credentials or sender identity,
// ErrInvalidParams for incomplete emails, ErrFailedToSendEmail wrapping
// provider failures and ErrUnknownWebhook for unsupported webhook records.
package email
