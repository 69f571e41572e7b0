package main

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/pkg/errors"
	"github.com/yuichiro-h/go/aws/sqsrouter"
)

// Alarm is the CloudWatch alarm state change carried in the SNS message.
type Alarm struct {
	AlarmName        string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription"`
	AWSAccountID     string `json:"AWSAccountId"`
	NewStateValue    string `json:"NewStateValue"`
	NewStateReason   string `json:"NewStateReason"`
	StateChangeTime  string `json:"StateChangeTime"`
	Region           string `json:"Region"`
	OldStateValue    string `json:"OldStateValue"`
}

func decodeAlarm(body string) (Alarm, error) {
	ctx := &sqsrouter.Context{Message: &sqs.Message{Body: aws.String(body)}}
	msg, err := ctx.GetSNSMessage()
	if err != nil {
		return Alarm{}, errors.Wrap(err, "decode sns payload")
	}
	if msg.Message == "" {
		return Alarm{}, errors.New("sns payload has no Message")
	}

	var alarm Alarm
	if err := json.Unmarshal([]byte(msg.Message), &alarm); err != nil {
		return Alarm{}, errors.Wrap(err, "decode alarm")
	}
	if alarm.AlarmName == "" {
		return Alarm{}, errors.New("alarm has no AlarmName")
	}
	return alarm, nil
}
