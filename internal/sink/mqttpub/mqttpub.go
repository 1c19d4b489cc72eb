package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// quiesce 断开前等待在途消息完成的毫秒数
const quiesce = 250

// Options MQTT 发布端配置
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

func (o *Options) normalize() {
	if o.ClientID == "" {
		o.ClientID = fmt.Sprintf("battery-hub-%d", time.Now().UnixNano())
	}
	if o.TopicPrefix == "" {
		o.TopicPrefix = "batteryhub"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
}

// Publisher 把读数与会话事件发布到 MQTT：
//
//	<prefix>/<device>/reading  读数 JSON
//	<prefix>/<device>/state    会话状态变更
//	<prefix>/<device>/fault    故障事件
//
// 实现 device.Sink。发布结果异步检查，失败只记日志，断线由 paho 自动重连。
type Publisher struct {
	cli    mqtt.Client
	prefix string
	qos    byte
	log    *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Publisher, error) {
	opts.normalize()
	if log == nil {
		log = zap.NewNop()
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetWriteTimeout(10 * time.Second)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	cli := mqtt.NewClient(co)
	tok := cli.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", opts.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &Publisher{
		cli:    cli,
		prefix: opts.TopicPrefix,
		qos:    opts.QoS,
		log:    log,
	}, nil
}

func (p *Publisher) OnReading(id coremodel.DeviceID, r coremodel.Reading) {
	p.publishJSON(p.topic(id, "reading"), r)
}

func (p *Publisher) OnStateChange(id coremodel.DeviceID, state coremodel.SessionState) {
	p.publishJSON(p.topic(id, "state"), map[string]interface{}{
		"state": state,
		"at":    time.Now().UTC(),
	})
}

func (p *Publisher) OnFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string) {
	p.publishJSON(p.topic(id, "fault"), map[string]interface{}{
		"kind":   kind,
		"detail": detail,
		"at":     time.Now().UTC(),
	})
}

// Close 等待在途消息后断开
func (p *Publisher) Close() error {
	p.cli.Disconnect(quiesce)
	return nil
}

func (p *Publisher) topic(id coremodel.DeviceID, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, id, leaf)
}

func (p *Publisher) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("MQTT 负载序列化失败", zap.String("topic", topic), zap.Error(err))
		return
	}

	tok := p.cli.Publish(topic, p.qos, false, payload)
	// paho 的 Publish 是异步的，错误在 token 完成后才可见
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			p.log.Warn("MQTT 发布失败", zap.String("topic", topic), zap.Error(err))
		}
	}()
}
