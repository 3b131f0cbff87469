package assembly

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/grpc/client"
	"github.com/txix-open/isp-kit/lb"
	"github.com/txix-open/isp-kit/log"

	"admission-service/conf"
	"admission-service/counter"
	"admission-service/handler"
	"admission-service/middleware"
	"admission-service/proxy"
	"admission-service/repository"
	"admission-service/service"
)

type Locator struct {
	logger                      log.Logger
	httpHostManagerByModuleName map[string]*lb.RoundRobin
	memoryStore                 *counter.Memory
	storageCli                  *client.Client
	billingCli                  *client.Client
}

func NewLocator(
	logger log.Logger,
	httpHostManagerByModuleName map[string]*lb.RoundRobin,
	memoryStore *counter.Memory,
	storageCli *client.Client,
	billingCli *client.Client,
) Locator {
	return Locator{
		logger:                      logger,
		httpHostManagerByModuleName: httpHostManagerByModuleName,
		memoryStore:                 memoryStore,
		storageCli:                  storageCli,
		billingCli:                  billingCli,
	}
}

func (l Locator) Handler(config conf.Remote, locations []conf.Location, redisCli redis.UniversalClient) (http.Handler, error) {
	var store counter.Store = l.memoryStore
	if redisCli != nil {
		store = counter.NewRedis(redisCli)
	}

	rateLimiter := service.NewRateLimiter(
		store,
		config.Policies,
		time.Duration(config.Timeouts.CounterTimeoutInSec)*time.Second,
		l.logger,
	)

	quotaRepo := repository.NewQuota(l.storageCli)
	planRepo := repository.NewPlan(l.billingCli)
	quotaService := service.NewQuota(
		quotaRepo,
		planRepo,
		time.Duration(config.Timeouts.QuotaTimeoutInSec)*time.Second,
		l.logger,
	)

	admission := service.NewAdmission(rateLimiter, quotaService)

	policyByName := make(map[string]conf.RateLimitPolicy)
	for _, policy := range config.Policies {
		policyByName[policy.Name] = policy
	}

	mux := http.NewServeMux()
	for _, location := range locations {
		policy, ok := policyByName[location.Policy]
		if !ok {
			return nil, errors.Errorf("location '%s' references unknown policy '%s'", location.PathPrefix, location.Policy)
		}
		if location.SkipAuth && policy.IdentitySource == conf.IdentitySourceUser {
			return nil, errors.Errorf("location '%s': policy '%s' needs a user but auth is skipped", location.PathPrefix, policy.Name)
		}
		if location.SkipAuth && location.DailyQuota {
			return nil, errors.Errorf("location '%s': daily quota needs a user but auth is skipped", location.PathPrefix)
		}

		identify := middleware.IpIdentity()
		if policy.IdentitySource == conf.IdentitySourceUser {
			identify = middleware.UserIdentity()
		}

		hostManager, ok := l.httpHostManagerByModuleName[location.TargetModule]
		if !ok {
			return nil, errors.Errorf("location '%s' references unknown module '%s'", location.PathPrefix, location.TargetModule)
		}
		proxyFunc := proxy.NewHttp(hostManager, location.SkipAuth, time.Duration(config.Http.ProxyTimeoutInSec)*time.Second)

		admissionMiddleware := middleware.Admission(
			admission,
			policy.Name,
			identify,
			location.DailyQuota,
			policy.Message,
			l.logger,
		)

		handler := middleware.Chain(
			proxyFunc,
			middleware.RequestId(),
			middleware.Logger(l.logger, config.Logging.RequestLogEnable),
			middleware.ErrorHandler(l.logger),
			middleware.Authenticate(),
			admissionMiddleware,
		)
		if location.SkipAuth {
			handler = middleware.Chain(
				proxyFunc,
				middleware.RequestId(),
				middleware.Logger(l.logger, config.Logging.RequestLogEnable),
				middleware.ErrorHandler(l.logger),
				admissionMiddleware,
			)
		}

		entrypoint := middleware.Entrypoint(
			config.Http.MaxRequestBodySizeInMb*1024*1024, //nolint:mnd
			handler,
			l.logger,
			location.PathPrefix,
		)
		mux.Handle(fmt.Sprintf("%s/", location.PathPrefix), entrypoint)
	}

	if config.AdminToken != "" {
		mux.Handle("/internal/", handler.NewAdmin(rateLimiter, config.AdminToken, l.logger))
	}

	return mux, nil
}
