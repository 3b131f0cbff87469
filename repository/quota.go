package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/grpc/client"

	"admission-service/entity"
)

const (
	getOrCreateQuotaEndpoint = "msp-storage-service/daily_quota/get_or_create"
	incrementQuotaEndpoint   = "msp-storage-service/daily_quota/increment"
)

// Quota talks to the persistent daily quota rows owned by the storage
// service. Increment is atomic on the storage side, this service never
// does read-modify-write against the row.
type Quota struct {
	cli *client.Client
}

func NewQuota(cli *client.Client) Quota {
	return Quota{
		cli: cli,
	}
}

func (r Quota) GetOrCreate(ctx context.Context, userId string, date string) (*entity.DailyQuota, error) {
	resp := new(entity.DailyQuota)
	err := r.cli.Invoke(getOrCreateQuotaEndpoint).
		JsonRequestBody(entity.GetOrCreateQuotaRequest{
			UserId: userId,
			Date:   date,
		}).
		JsonResponseBody(resp).
		Do(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "invoke msp-storage-service: '%s'", getOrCreateQuotaEndpoint)
	}
	return resp, nil
}

func (r Quota) Increment(ctx context.Context, quotaId int64) (*entity.DailyQuota, error) {
	resp := new(entity.DailyQuota)
	err := r.cli.Invoke(incrementQuotaEndpoint).
		JsonRequestBody(entity.IncrementQuotaRequest{
			QuotaId: quotaId,
		}).
		JsonResponseBody(resp).
		Do(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "invoke msp-storage-service: '%s'", incrementQuotaEndpoint)
	}
	return resp, nil
}
