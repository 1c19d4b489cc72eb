package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// header 列顺序固定，追加打开时不重写
var header = []string{"Timestamp", "Voltage", "Current", "SOC", "Remaining_Ah", "Cycles", "Cell_Delta"}

// Logger 将每条读数追加到按设备区分的 CSV 文件（<dir>/<device>.csv）。
// 实现 device.Sink；故障与状态事件不落盘。每行写后立即 Flush，崩溃最多丢一行。
type Logger struct {
	dir string
	log *zap.Logger

	mu    sync.Mutex
	files map[coremodel.DeviceID]*deviceFile
}

type deviceFile struct {
	f *os.File
	w *csv.Writer
}

func New(dir string, log *zap.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{
		dir:   dir,
		log:   log,
		files: make(map[coremodel.DeviceID]*deviceFile),
	}, nil
}

func (l *Logger) OnReading(id coremodel.DeviceID, r coremodel.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()

	df, err := l.ensure(id)
	if err != nil {
		l.log.Error("打开 CSV 文件失败", zap.String("device", string(id)), zap.Error(err))
		return
	}

	row := []string{
		r.At.Format("2006-01-02 15:04:05"),
		fmtOpt(r.Voltage, 2),
		fmtOpt(r.Current, 2),
		fmtOpt(r.SOC, 1),
		fmtOpt(r.RemainingAh, 2),
		fmtInt(r.Cycles),
		fmtOpt(r.CellDelta, 3),
	}
	if err := df.w.Write(row); err != nil {
		l.log.Error("写 CSV 行失败", zap.String("device", string(id)), zap.Error(err))
		return
	}
	df.w.Flush()
	if err := df.w.Error(); err != nil {
		l.log.Error("CSV 刷盘失败", zap.String("device", string(id)), zap.Error(err))
	}
}

func (l *Logger) OnFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string) {}

func (l *Logger) OnStateChange(id coremodel.DeviceID, state coremodel.SessionState) {}

// Close 刷盘并关闭全部文件
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for id, df := range l.files {
		df.w.Flush()
		if err := df.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := df.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.files, id)
	}
	return firstErr
}

// ensure 按需打开设备文件；新文件先写表头
func (l *Logger) ensure(id coremodel.DeviceID) (*deviceFile, error) {
	if df, ok := l.files[id]; ok {
		return df, nil
	}

	path := filepath.Join(l.dir, string(id)+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}

	df := &deviceFile{f: f, w: w}
	l.files[id] = df
	return df, nil
}

// fmtOpt 可选字段：nil 写空单元格，与 0 值区分
func fmtOpt(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
