package kafka

import "errors"

var (
	ErrNoBrokers = errors.New("kafka: no brokers configured")
	ErrNoTopic   = errors.New("kafka: no topic for recipient")
	ErrPublish   = errors.New("kafka: publish failed")
)
