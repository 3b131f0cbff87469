package conf

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
)

const (
	IdentitySourceIp   = "ip"
	IdentitySourceUser = "user"
)

type Remote struct {
	Redis      *Redis            `schema:"Настройки Redis,общий счётчик для нескольких реплик; если не указан, используется внутренний счётчик процесса"`
	Http       Http              `schema:"Настройки HTTP"`
	Logging    Logging           `schema:"Настройки логирования"`
	Policies   []RateLimitPolicy `schema:"Политики ограничения всплесков"`
	Timeouts   Timeouts          `schema:"Таймауты обращения к внешним хранилищам"`
	Janitor    Janitor           `schema:"Настройки очистки счётчиков"`
	AdminToken string            `schema:"Токен внутреннего API,пустое значение отключает внутренний API"`
}

type Http struct {
	MaxRequestBodySizeInMb int64 `valid:"required" schema:"Максимальная длина тела запроса,в мегабайтах"`
	ProxyTimeoutInSec      int   `valid:"required" schema:"Таймаут на проксирование,в секундах"`
}

type Logging struct {
	LogLevel         log.Level `schema:"Уровень логирования"`
	RequestLogEnable bool      `schema:"Включить логирование запросов"`
}

type RateLimitPolicy struct {
	Name           string `valid:"required" schema:"Имя политики"`
	MaxRequests    int64  `schema:"Максимум запросов в окне,0 блокирует все запросы"`
	WindowSeconds  int    `valid:"required" schema:"Длина окна,в секундах"`
	IdentitySource string `valid:"required,in(ip|user)" schema:"Источник идентификатора вызывающего"`
	Message        string `schema:"Сообщение об ошибке,необязательно"`
}

type Timeouts struct {
	CounterTimeoutInSec int `valid:"required" schema:"Таймаут обращения к счётчику окон,в секундах"`
	QuotaTimeoutInSec   int `valid:"required" schema:"Таймаут обращения к хранилищу квот и биллингу,в секундах"`
}

type Janitor struct {
	IntervalInSec int `valid:"required" schema:"Интервал очистки устаревших счётчиков,в секундах"`
}

type Redis struct {
	Address  string         `schema:"Адрес,обязательно, если sentinel не указан"`
	Username string         `schema:"Имя пользователя"`
	Password string         `schema:"Пароль"`
	Sentinel *RedisSentinel `schema:"Настройки sentinel,обязательно, если address не указан"`
}

type RedisSentinel struct {
	Addresses  []string `valid:"required" schema:"Адреса нод в кластере"`
	MasterName string   `valid:"required" schema:"Имя мастера"`
	Username   string   `schema:"Имя пользователя в sentinel"`
	Password   string   `schema:"Пароль в sentinel"`
}

func (r Remote) Validate() error {
	if r.Redis != nil && r.Redis.Sentinel == nil && r.Redis.Address == "" {
		return errors.New("invalid redis config. sentinel or address are required")
	}

	names := make(map[string]bool)
	for _, policy := range r.Policies {
		if names[policy.Name] {
			return errors.Errorf("duplicated rate limit policy '%s'", policy.Name)
		}
		names[policy.Name] = true

		if policy.WindowSeconds <= 0 {
			return errors.Errorf("invalid windowSeconds for policy '%s'", policy.Name)
		}
		if policy.MaxRequests < 0 {
			return errors.Errorf("invalid maxRequests for policy '%s'", policy.Name)
		}
		// callers detect blocking programmatically by this substring
		if policy.Message != "" && !strings.Contains(policy.Message, "rate limit") {
			return errors.Errorf("message for policy '%s' must contain 'rate limit'", policy.Name)
		}
	}
	return nil
}
