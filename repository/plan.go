package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/grpc/client"

	"admission-service/entity"
)

const (
	getPlanEndpoint = "msp-billing-service/plan/get_by_user"
)

type Plan struct {
	cli *client.Client
}

func NewPlan(cli *client.Client) Plan {
	return Plan{
		cli: cli,
	}
}

// GetPlanForUser is called on every quota check on purpose: a plan upgrade
// must take effect immediately, stale caching here is a billing bug.
func (r Plan) GetPlanForUser(ctx context.Context, userId string) (*entity.PlanTier, error) {
	resp := new(entity.PlanTier)
	err := r.cli.Invoke(getPlanEndpoint).
		JsonRequestBody(entity.GetPlanRequest{UserId: userId}).
		JsonResponseBody(resp).
		Do(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "invoke msp-billing-service: '%s'", getPlanEndpoint)
	}
	return resp, nil
}
