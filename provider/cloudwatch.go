package provider

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/pkg/errors"
)

// CloudWatchAlarms answers alarm state queries with DescribeAlarms.
type CloudWatchAlarms struct {
	client cloudwatchiface.CloudWatchAPI
}

func NewCloudWatchAlarms(client cloudwatchiface.CloudWatchAPI) *CloudWatchAlarms {
	return &CloudWatchAlarms{client: client}
}

// IsBreaching reports whether the alarm is in the ALARM state. An alarm that
// no longer exists is not breaching.
func (c *CloudWatchAlarms) IsBreaching(ctx context.Context, alarmName string) (bool, error) {
	out, err := c.client.DescribeAlarmsWithContext(ctx, &cloudwatch.DescribeAlarmsInput{
		AlarmNames: aws.StringSlice([]string{alarmName}),
		AlarmTypes: aws.StringSlice([]string{cloudwatch.AlarmTypeMetricAlarm, cloudwatch.AlarmTypeCompositeAlarm}),
	})
	if err != nil {
		return false, errors.Wrapf(err, "describe alarm %s", alarmName)
	}

	for _, a := range out.MetricAlarms {
		if aws.StringValue(a.AlarmName) == alarmName {
			return aws.StringValue(a.StateValue) == cloudwatch.StateValueAlarm, nil
		}
	}
	for _, a := range out.CompositeAlarms {
		if aws.StringValue(a.AlarmName) == alarmName {
			return aws.StringValue(a.StateValue) == cloudwatch.StateValueAlarm, nil
		}
	}
	return false, nil
}
