package provider

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
)

// SQSSource receives notifications from an SQS queue subscribed to the alarm topic.
type SQSSource struct {
	client   sqsiface.SQSAPI
	queueURL string
}

func NewSQSSource(client sqsiface.SQSAPI, queueURL string) *SQSSource {
	return &SQSSource{
		client:   client,
		queueURL: queueURL,
	}
}

func (s *SQSSource) Receive(ctx context.Context, wait time.Duration) (Notification, bool, error) {
	out, err := s.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: aws.Int64(1),
		WaitTimeSeconds:     aws.Int64(int64(wait / time.Second)),
	})
	if err != nil {
		return Notification{}, false, errors.Wrapf(err, "receive message from %s", s.queueURL)
	}
	if len(out.Messages) == 0 {
		return Notification{}, false, nil
	}

	msg := out.Messages[0]
	return Notification{
		ID:            aws.StringValue(msg.MessageId),
		Body:          aws.StringValue(msg.Body),
		ReceiptHandle: aws.StringValue(msg.ReceiptHandle),
	}, true, nil
}

func (s *SQSSource) Acknowledge(ctx context.Context, n Notification) error {
	_, err := s.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(n.ReceiptHandle),
	})
	if err != nil {
		return errors.Wrapf(err, "delete message %s", n.ID)
	}
	return nil
}
