package provider

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

const (
	cooldownKeyAttr  = "AlarmId"
	cooldownTimeAttr = "LastScalingActivity"
)

// DynamoDBCooldowns stores last scaling times in a table keyed by alarm name.
type DynamoDBCooldowns struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func NewDynamoDBCooldowns(client dynamodbiface.DynamoDBAPI, table string) *DynamoDBCooldowns {
	return &DynamoDBCooldowns{
		client: client,
		table:  table,
	}
}

func (d *DynamoDBCooldowns) GetLastScalingTime(ctx context.Context, key string) (time.Time, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			cooldownKeyAttr: {S: aws.String(key)},
		},
	})
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "get cooldown %s from %s", key, d.table)
	}
	if len(out.Item) == 0 {
		return time.Time{}, nil
	}

	attr, ok := out.Item[cooldownTimeAttr]
	if !ok || attr.N == nil {
		return time.Time{}, nil
	}
	t, err := parseEpochSeconds(*attr.N)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cooldown %s in %s", key, d.table)
	}
	return t, nil
}

func (d *DynamoDBCooldowns) SetLastScalingTime(ctx context.Context, key string, t time.Time) error {
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]*dynamodb.AttributeValue{
			cooldownKeyAttr:  {S: aws.String(key)},
			cooldownTimeAttr: {N: aws.String(formatEpochSeconds(t))},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "put cooldown %s to %s", key, d.table)
	}
	return nil
}

func formatEpochSeconds(t time.Time) string {
	sec := t.Unix()
	nsec := t.Nanosecond()
	if nsec == 0 {
		return strconv.FormatInt(sec, 10)
	}
	return strconv.FormatInt(sec, 10) + "." + strconv.FormatInt(int64(nsec)+1e9, 10)[1:]
}

func parseEpochSeconds(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse epoch seconds %q", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))), nil
}
