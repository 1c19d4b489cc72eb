package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/storage/pg"
)

const insertTimeout = 5 * time.Second

// Recorder 把每条读数写入历史库（readings 表）。
// 实现 device.Sink；总线分发 goroutine 串行调用，写失败只记日志不反压采集。
type Recorder struct {
	repo *pg.ReadingsRepo
	log  *zap.Logger
}

func NewRecorder(repo *pg.ReadingsRepo, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{repo: repo, log: log}
}

func (r *Recorder) OnReading(id coremodel.DeviceID, rd coremodel.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, id, &rd); err != nil {
		r.log.Error("写入读数历史失败",
			zap.String("device", string(id)),
			zap.Error(err))
	}
}

func (r *Recorder) OnFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string) {}

func (r *Recorder) OnStateChange(id coremodel.DeviceID, state coremodel.SessionState) {}
