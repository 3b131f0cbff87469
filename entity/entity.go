package entity

type GetOrCreateQuotaRequest struct {
	UserId string
	Date   string
}

type DailyQuota struct {
	Id        int64
	UserId    string
	Date      string
	UsedCount int64
}

type IncrementQuotaRequest struct {
	QuotaId int64
}

type GetPlanRequest struct {
	UserId string
}

type PlanTier struct {
	Plan       string
	DailyLimit int64
}
