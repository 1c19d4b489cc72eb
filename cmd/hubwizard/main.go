// hubwizard 探测向导：逐台连接配置中的电池，让采集引擎跑一轮完整的
// 档案探测，打印确认到的厂商协议，可选写回注册表固定档案。
// 新装机时先跑一次向导，正式采集就能跳过探测直连。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/app"
	cfgpkg "github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/device"
	"github.com/driller442/BatteryHub/internal/logging"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
	"github.com/driller442/BatteryHub/internal/storage"
	"github.com/driller442/BatteryHub/internal/transport/bleclient"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（留空则按默认顺序查找）")
	deviceID := flag.String("device", "", "只探测指定设备（留空则探测全部）")
	timeout := flag.Duration("timeout", 45*time.Second, "单台设备的探测时限")
	pin := flag.Bool("pin", false, "探测成功后把档案写入注册表（需启用数据库）")
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}

	// 向导是一次性工具：日志只进控制台，人类可读格式
	cfg.Logging.Format = "console"
	cfg.Logging.File.Filename = ""
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	targets := cfg.Devices
	if *deviceID != "" {
		targets = nil
		for _, d := range cfg.Devices {
			if d.ID == *deviceID {
				targets = append(targets, d)
			}
		}
		if len(targets) == 0 {
			fmt.Fprintf(os.Stderr, "配置中没有设备 %q\n", *deviceID)
			os.Exit(1)
		}
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "配置中没有任何设备")
		os.Exit(1)
	}

	var registry storage.Registry
	if *pin {
		if !cfg.Database.Enabled {
			fmt.Fprintln(os.Stderr, "-pin 需要启用数据库，本次结果只打印不落库")
		} else {
			registry, err = app.OpenRegistry(cfg.Database.DSN)
			if err != nil {
				fmt.Fprintln(os.Stderr, "打开注册表失败:", err)
				os.Exit(1)
			}
		}
	}

	reasons := app.NewJBDReasonMap(cfg.Protocols.JBD, logger)
	// 向导的职责就是发现真相：无视已固定的档案，全量探测
	all, err := app.CandidateProfiles("", reasons)
	if err != nil {
		fmt.Fprintln(os.Stderr, "装载协议档案失败:", err)
		os.Exit(1)
	}
	cands := make(map[string][]profile.Profile, len(targets))
	for _, d := range targets {
		cands[d.ID] = all
	}

	tr := bleclient.New(
		app.GATTSpecs(targets, cands, logger),
		bleclient.Options{ChunkQueue: cfg.BLE.ChunkQueue},
		logger,
	)

	failed := 0
	for _, d := range targets {
		fmt.Printf("==> 探测 %s (%s)\n", d.ID, d.Address)
		prof, err := probe(cfg, d, all, tr, logger, *timeout)
		if err != nil {
			failed++
			fmt.Printf("    失败: %v\n", err)
			continue
		}
		fmt.Printf("    确认档案: %s\n", prof)
		if registry != nil {
			if err := registry.SetPinnedProfile(context.Background(), d.ID, string(prof)); err != nil {
				fmt.Fprintf(os.Stderr, "    写入注册表失败: %v\n", err)
				failed++
				continue
			}
			fmt.Println("    已写入注册表")
		} else {
			fmt.Printf("    可在配置中固定: devices[].profile: %q\n", prof)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// probe 用真实采集会话跑一轮探测，拿到首条确认读数即返回其档案。
// 只给一次连接机会：向导面对的是现场人员，失败要快。
func probe(
	cfg *cfgpkg.Config,
	d cfgpkg.DeviceConfig,
	cands []profile.Profile,
	tr *bleclient.Transport,
	log *zap.Logger,
	timeout time.Duration,
) (coremodel.ProfileID, error) {
	sink := newProbeSink()
	bus := device.NewBus(16, log, nil)
	bus.Register("wizard", sink)
	defer bus.Close()

	sc := device.Config{
		ConfirmThreshold: cfg.Engine.ConfirmThreshold,
		DemoteThreshold:  cfg.Engine.DemoteThreshold,
		NoMatchLimit:     cfg.Engine.NoMatchLimit,
		PollInterval:     cfg.Engine.PollInterval,
		ProbeTimeout:     cfg.Engine.ProbeTimeout,
		WriteRate:        cfg.Engine.WriteRate,
	}
	sup := device.NewSupervisor(tr, device.ReconnectConfig{
		ConnectTimeout: cfg.Engine.ConnectTimeout,
		BackoffBase:    cfg.Engine.BackoffBase,
		BackoffCap:     cfg.Engine.BackoffCap,
		MaxAttempts:    1,
	}, log, nil)
	s := device.NewSession(coremodel.DeviceID(d.ID), d.Address, cands, sc, bus, log, nil)
	if err := sup.Add(s); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		return "", err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = sup.Stop(stopCtx)
	}()

	select {
	case r := <-sink.readings:
		return r.Profile, nil
	case msg := <-sink.terminal:
		return "", fmt.Errorf("%s", msg)
	case <-ctx.Done():
		return "", fmt.Errorf("探测超时（%s）", timeout)
	}
}

// probeSink 只关心首条读数与终结性故障；其余事件由引擎日志呈现
type probeSink struct {
	readings chan coremodel.Reading
	terminal chan string
}

func newProbeSink() *probeSink {
	return &probeSink{
		readings: make(chan coremodel.Reading, 1),
		terminal: make(chan string, 1),
	}
}

func (s *probeSink) OnReading(_ coremodel.DeviceID, r coremodel.Reading) {
	select {
	case s.readings <- r:
	default:
	}
}

func (s *probeSink) OnFault(_ coremodel.DeviceID, kind coremodel.FaultKind, detail string) {
	switch kind {
	case coremodel.FaultNoMatchingProfile, coremodel.FaultReconnectExhausted:
		select {
		case s.terminal <- fmt.Sprintf("%s: %s", kind, detail):
		default:
		}
	}
}

func (s *probeSink) OnStateChange(coremodel.DeviceID, coremodel.SessionState) {}
