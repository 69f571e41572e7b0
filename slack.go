package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nlopes/slack"
	"github.com/pkg/errors"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/scaling"
)

type slackPoster interface {
	PostMessage(channel, text string, params slack.PostMessageParameters) (string, string, error)
}

type slackNotifier struct {
	client   slackPoster
	channel  string
	username string
	iconURL  string
	color    string
}

func newSlackNotifier(client slackPoster, channel, username, iconURL, color string) *slackNotifier {
	return &slackNotifier{
		client:   client,
		channel:  channel,
		username: username,
		iconURL:  iconURL,
		color:    color,
	}
}

func (n *slackNotifier) Notify(_ context.Context, e scaling.Event) error {
	text, params := n.buildMessage(e)
	if _, _, err := n.client.PostMessage(n.channel, text, params); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (n *slackNotifier) buildMessage(e scaling.Event) (string, slack.PostMessageParameters) {
	direction := "out"
	if e.ProposedCapacity < e.CurrentCapacity {
		direction = "in"
	}

	attachment := slack.Attachment{
		Color:      n.color,
		MarkdownIn: []string{"text"},
		Fields: []slack.AttachmentField{
			{Title: "Alarm", Value: e.AlarmName},
			{Title: "Old desired count", Value: strconv.Itoa(e.CurrentCapacity), Short: true},
			{Title: "New desired count", Value: strconv.Itoa(e.ProposedCapacity), Short: true},
		},
	}

	params := slack.PostMessageParameters{
		Markdown:    true,
		Username:    n.username,
		IconURL:     n.iconURL,
		Attachments: []slack.Attachment{attachment},
	}

	text := fmt.Sprintf("Scaled %s *%s* from %d to %d", direction, e.ServiceName, e.CurrentCapacity, e.ProposedCapacity)
	return text, params
}
