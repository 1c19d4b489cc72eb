package app

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/alert"
	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/device"
	"github.com/driller442/BatteryHub/internal/metrics"
	"github.com/driller442/BatteryHub/internal/sink/csvlog"
	"github.com/driller442/BatteryHub/internal/sink/history"
	"github.com/driller442/BatteryHub/internal/sink/mqttpub"
	"github.com/driller442/BatteryHub/internal/sink/state"
	"github.com/driller442/BatteryHub/internal/storage"
	pgstorage "github.com/driller442/BatteryHub/internal/storage/pg"
	redisstorage "github.com/driller442/BatteryHub/internal/storage/redis"
)

// Sinks 汇聚启用的读数出口；Holder 常驻（查询接口依赖它）
type Sinks struct {
	Holder *state.Holder

	closers []func() error
	log     *zap.Logger
}

// Close 逆序关闭各出口；应在总线 Close 之后调用，保证队列已排空
func (s *Sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("sink close error", zap.Error(err))
		}
	}
}

// BuildSinks 按配置组装全部 Sink 并挂上总线。
// readings/registry/redisClient 允许为 nil，对应出口自动降级或跳过。
func BuildSinks(
	ctx context.Context,
	cfg *cfgpkg.Config,
	bus *device.Bus,
	readings *pgstorage.ReadingsRepo,
	registry storage.Registry,
	redisClient *redisstorage.Client,
	instanceID string,
	log *zap.Logger,
	appm *metrics.AppMetrics,
) (*Sinks, error) {
	out := &Sinks{Holder: state.NewHolder(), log: log}

	// 启动时用历史库的最后读数预热查询缓存，首轮采集前接口就有数据
	if readings != nil {
		for _, d := range cfg.Devices {
			rd, err := readings.Latest(ctx, coremodel.DeviceID(d.ID))
			if err != nil {
				log.Warn("load last reading failed", zap.String("device", d.ID), zap.Error(err))
				continue
			}
			out.Holder.Seed(coremodel.DeviceID(d.ID), rd)
		}
	}
	bus.Register("state", out.Holder)

	if cfg.Sinks.CSV.Enabled {
		csv, err := csvlog.New(cfg.Sinks.CSV.Dir, log)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, csv.Close)
		bus.Register("csv", csv)
		log.Info("csv sink enabled", zap.String("dir", cfg.Sinks.CSV.Dir))
	}

	if cfg.Sinks.History.Enabled {
		if readings == nil {
			log.Warn("history sink enabled but database disabled, skipping")
		} else {
			bus.Register("history", history.NewRecorder(readings, log))
			log.Info("history sink enabled")
		}
	}

	if cfg.Sinks.MQTT.Enabled {
		opts := mqttpub.Options{
			Broker:         cfg.Sinks.MQTT.Broker,
			ClientID:       cfg.Sinks.MQTT.ClientID,
			Username:       cfg.Sinks.MQTT.Username,
			Password:       cfg.Sinks.MQTT.Password,
			TopicPrefix:    cfg.Sinks.MQTT.TopicPrefix,
			QoS:            byte(cfg.Sinks.MQTT.QoS),
			ConnectTimeout: cfg.Sinks.MQTT.ConnectTimeout,
		}
		if opts.ClientID == "" {
			opts.ClientID = instanceID
		}
		pub, err := mqttpub.New(opts, log)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, pub.Close)
		bus.Register("mqtt", pub)
		log.Info("mqtt sink enabled", zap.String("broker", cfg.Sinks.MQTT.Broker))
	}

	if cfg.Alert.Enabled && cfg.Alert.WebhookURL != "" {
		pusher := alert.NewPusher(
			&http.Client{Timeout: cfg.Alert.Timeout},
			cfg.Alert.APIKey,
			cfg.Alert.Secret,
		)
		if cfg.Alert.MaxRetries > 0 {
			pusher.Retries = cfg.Alert.MaxRetries
		}
		dedup := alert.NewDeduper(redisDB(redisClient), log, cfg.Alert.DedupTTL)
		notifier := alert.NewNotifier(alert.NotifierConfig{
			WebhookURL: cfg.Alert.WebhookURL,
			SOCLow:     cfg.Alert.SOCLow,
			Timeout:    cfg.Alert.Timeout,
		}, pusher, dedup, log, appm)
		bus.Register("alert", notifier)
		log.Info("alert sink enabled", zap.Float64("soc_low", cfg.Alert.SOCLow))
	}

	if registry != nil {
		bus.Register("registry", NewRegistrySink(registry, log))
	}

	return out, nil
}

// redisDB 取底层连接；包装器为 nil 时返回 nil，去重器退化为内存窗口
func redisDB(c *redisstorage.Client) *redis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}
