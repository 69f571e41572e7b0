package provider

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/pkg/errors"
)

// ECSServices reads and updates the desired count of services in one ECS cluster.
type ECSServices struct {
	client  ecsiface.ECSAPI
	cluster string
}

func NewECSServices(client ecsiface.ECSAPI, cluster string) *ECSServices {
	return &ECSServices{
		client:  client,
		cluster: cluster,
	}
}

func (e *ECSServices) GetDesiredCapacity(ctx context.Context, serviceName string) (int, error) {
	out, err := e.client.DescribeServicesWithContext(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(e.cluster),
		Services: aws.StringSlice([]string{serviceName}),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "describe service %s in %s", serviceName, e.cluster)
	}
	if len(out.Services) == 0 {
		reason := "no service returned"
		if len(out.Failures) > 0 {
			reason = aws.StringValue(out.Failures[0].Reason)
		}
		return 0, errors.Wrapf(ErrNotFound, "service %s in %s: %s", serviceName, e.cluster, reason)
	}

	svc := out.Services[0]
	if svc.DesiredCount == nil {
		return 0, errors.Errorf("service %s in %s has no desired count", serviceName, e.cluster)
	}
	return int(*svc.DesiredCount), nil
}

func (e *ECSServices) SetDesiredCapacity(ctx context.Context, serviceName string, capacity int) error {
	_, err := e.client.UpdateServiceWithContext(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(e.cluster),
		Service:      aws.String(serviceName),
		DesiredCount: aws.Int64(int64(capacity)),
	})
	if err != nil {
		return errors.Wrapf(err, "update service %s in %s to %d", serviceName, e.cluster, capacity)
	}
	return nil
}
