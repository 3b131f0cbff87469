package assembly

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/app"
	"github.com/txix-open/isp-kit/bootstrap"
	"github.com/txix-open/isp-kit/cluster"
	"github.com/txix-open/isp-kit/grpc/client"
	"github.com/txix-open/isp-kit/http"
	"github.com/txix-open/isp-kit/lb"
	"github.com/txix-open/isp-kit/log"

	"admission-service/conf"
	"admission-service/counter"
)

const (
	storageModuleName = "msp-storage-service"
	billingModuleName = "msp-billing-service"
)

type Assembly struct {
	boot        *bootstrap.Bootstrap
	server      *http.Server
	logger      *log.Adapter
	redisCli    redis.UniversalClient
	storageCli  *client.Client
	billingCli  *client.Client
	memoryStore *counter.Memory
	janitorStop context.CancelFunc

	locations                   []conf.Location
	httpHostManagerByModuleName map[string]*lb.RoundRobin
}

func New(boot *bootstrap.Bootstrap) (*Assembly, error) {
	server := http.NewServer(boot.App.Logger())

	localConfig := conf.Local{}
	err := boot.App.Config().Read(&localConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "read local config")
	}

	httpHostManagerByModuleName := make(map[string]*lb.RoundRobin)
	for _, location := range localConfig.Locations {
		httpHostManagerByModuleName[location.TargetModule] = lb.NewRoundRobin(nil)
	}

	storageCli, err := client.Default()
	if err != nil {
		return nil, errors.WithMessage(err, "create storage cli")
	}

	billingCli, err := client.Default()
	if err != nil {
		return nil, errors.WithMessage(err, "create billing cli")
	}

	return &Assembly{
		boot:                        boot,
		server:                      server,
		logger:                      boot.App.Logger(),
		storageCli:                  storageCli,
		billingCli:                  billingCli,
		memoryStore:                 counter.NewMemory(),
		locations:                   localConfig.Locations,
		httpHostManagerByModuleName: httpHostManagerByModuleName,
	}, nil
}

func (a *Assembly) ReceiveConfig(ctx context.Context, remoteConfig []byte) error {
	var (
		newCfg  conf.Remote
		prevCfg conf.Remote
	)
	err := a.boot.RemoteConfig.Upgrade(remoteConfig, &newCfg, &prevCfg)
	if err != nil {
		a.logger.Fatal(ctx, errors.WithMessage(err, "upgrade remote config"))
	}
	err = newCfg.Validate()
	if err != nil {
		a.logger.Fatal(ctx, errors.WithMessage(err, "invalid remote config"))
	}

	a.logger.SetLevel(newCfg.Logging.LogLevel)

	var newRedisCli redis.UniversalClient
	if newCfg.Redis != nil {
		newRedisCli = a.redisClient(*newCfg.Redis)
	}

	locator := NewLocator(a.logger, a.httpHostManagerByModuleName, a.memoryStore, a.storageCli, a.billingCli)

	handler, err := locator.Handler(newCfg, a.locations, newRedisCli)
	if err != nil {
		return errors.WithMessage(err, "locator handler")
	}

	a.server.Upgrade(handler)

	if a.redisCli != nil {
		_ = a.redisCli.Close()
	}
	a.redisCli = newRedisCli

	a.restartJanitor(newCfg, newRedisCli != nil)

	return nil
}

// restartJanitor runs a sweep loop over the in-process store. The redis
// store expires keys itself, so the janitor stays off while redis is on.
func (a *Assembly) restartJanitor(config conf.Remote, redisEnabled bool) {
	if a.janitorStop != nil {
		a.janitorStop()
		a.janitorStop = nil
	}
	if redisEnabled {
		return
	}

	janitor := counter.NewJanitor(
		a.memoryStore,
		time.Duration(config.Janitor.IntervalInSec)*time.Second,
		a.logger,
	)
	janitorCtx, cancel := context.WithCancel(context.Background())
	a.janitorStop = cancel
	go func() {
		_ = janitor.Run(janitorCtx)
	}()
}

func (a *Assembly) Runners() []app.Runner {
	eventHandler := cluster.NewEventHandler().
		RemoteConfigReceiver(a)

	for moduleName, upgrader := range a.httpHostManagerByModuleName {
		eventHandler.RequireModule(moduleName, upgrader)
	}
	eventHandler.RequireModule(storageModuleName, a.storageCli)
	eventHandler.RequireModule(billingModuleName, a.billingCli)

	return []app.Runner{
		app.RunnerFunc(func(ctx context.Context) error {
			return a.server.ListenAndServe(a.boot.BindingAddress)
		}),
		app.RunnerFunc(func(ctx context.Context) error {
			return a.boot.ClusterCli.Run(ctx, eventHandler)
		}),
	}
}

func (a *Assembly) Closers() []app.Closer {
	return []app.Closer{
		a.boot.ClusterCli,
		app.CloserFunc(func() error {
			return a.server.Shutdown(context.Background())
		}),
		a.storageCli,
		a.billingCli,
		app.CloserFunc(func() error {
			if a.janitorStop != nil {
				a.janitorStop()
			}
			if a.redisCli != nil {
				return a.redisCli.Close()
			}
			return nil
		}),
	}
}

func (a *Assembly) redisClient(config conf.Redis) redis.UniversalClient {
	if config.Sentinel != nil {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       config.Sentinel.MasterName,
			SentinelAddrs:    config.Sentinel.Addresses,
			SentinelUsername: config.Sentinel.Username,
			SentinelPassword: config.Sentinel.Password,
			Username:         config.Username,
			Password:         config.Password,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Username: config.Username,
		Password: config.Password,
	})
}
