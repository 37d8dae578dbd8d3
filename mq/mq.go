package mq

import "context"

// MessageQueue carries layer-cascade purge jobs. Receive long-polls and
// returns nil when no message arrived this poll.
type MessageQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}
