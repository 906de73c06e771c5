// Package kafka implements a delivery channel that publishes notifications to
// Kafka topics through github.com/segmentio/kafka-go.
//
// Each recipient gets one message whose value is a JSON Envelope. The
// recipient address, when set, names the topic; otherwise the channel's
// default topic is used. Messages are keyed by "<tenant>:<recipient>".
//
//	ch, err := kafka.NewChannelFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	defer ch.Close()
//	_ = engine.RegisterChannel(ch)
package kafka
