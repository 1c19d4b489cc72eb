package profile

import (
	"errors"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// 框架层错误，由各档案的 FrameSize/Validate/Decode 返回；
// 上层用 errors.Is 判断，厂商包可用 %w 追加细节。
var (
	// ErrNeedMore 头部字节不足，等待后续分片
	ErrNeedMore = errors.New("need more bytes")
	// ErrBadHeader 头部字段不符合档案声明
	ErrBadHeader = errors.New("bad frame header")
	// ErrBadChecksum 校验和不匹配
	ErrBadChecksum = errors.New("checksum mismatch")
	// ErrTruncated 帧长不足以覆盖字段布局
	ErrTruncated = errors.New("frame truncated")
	// ErrBadStatus 设备在应答中报告错误状态
	ErrBadStatus = errors.New("device reported error status")
)

// Quantity 原始整数读数及其换算参数，换算关系由厂商布局声明：
// value = (raw - bias) * scale
type Quantity struct {
	Raw   int64
	Scale float64
	Bias  int64
}

// Value 换算为物理量
func (q Quantity) Value() float64 { return float64(q.Raw-q.Bias) * q.Scale }

// Profile 单一厂商协议档案：帧界定规则 + 校验算法 + 字段布局。
// 实现必须无内部状态（并发复用安全）；新增厂商只新增实现，不改动既有档案。
type Profile interface {
	ID() coremodel.ProfileID

	// StartMarker 帧起始标记字节序列
	StartMarker() []byte
	// MinHeader 计算声明帧长所需的最少字节数（自标记起）
	MinHeader() int
	// FrameSize 由头部得出帧总长；字节不足返回 ErrNeedMore，
	// 头部畸形返回 ErrBadHeader
	FrameSize(header []byte) (int, error)
	// MaxFrameSize 档案允许的最大帧长，重组缓冲的丢弃上界
	MaxFrameSize() int
	// Validate 对完整候选帧执行厂商校验（校验和、状态字节）
	Validate(frame []byte) error

	// Decode 将校验通过的帧解码为原始字段；不得修改帧内容
	Decode(frame []byte) (*Fields, error)

	// Requests 一个轮询周期需向设备下发的请求帧（按序）
	Requests() [][]byte
	// CycleComplete 判断累计字段是否足以产出一条完整读数
	CycleComplete(f *Fields) bool
}

// Fields 自单帧解码出的原始字段集合。
// nil 指针表示该帧未携带对应字段；多帧协议在一个轮询周期内用 Merge 叠加。
type Fields struct {
	Voltage     *Quantity
	Current     *Quantity
	SOC         *Quantity
	RemainingAh *Quantity
	Cycles      *int
	// CellCount 协议声明的电芯数量（用于截掉未装配槽位）
	CellCount *int
	// TempCount 协议声明的温度探头数量
	TempCount *int
	Alarms    []string

	cells map[int]Quantity
	temps map[int]Quantity
}

// SetCell 记录第 i 路电芯（0 基）原始读数
func (f *Fields) SetCell(i int, q Quantity) {
	if f.cells == nil {
		f.cells = make(map[int]Quantity)
	}
	f.cells[i] = q
}

// SetTemp 记录第 i 路温度（0 基）原始读数
func (f *Fields) SetTemp(i int, q Quantity) {
	if f.temps == nil {
		f.temps = make(map[int]Quantity)
	}
	f.temps[i] = q
}

// CellsSeen 已收到的电芯路数
func (f *Fields) CellsSeen() int { return len(f.cells) }

// TempsSeen 已收到的温度路数
func (f *Fields) TempsSeen() int { return len(f.temps) }

// Merge 将 o 中出现的字段叠加进 f；同名字段以 o 为准（后到覆盖）
func (f *Fields) Merge(o *Fields) {
	if o == nil {
		return
	}
	if o.Voltage != nil {
		f.Voltage = o.Voltage
	}
	if o.Current != nil {
		f.Current = o.Current
	}
	if o.SOC != nil {
		f.SOC = o.SOC
	}
	if o.RemainingAh != nil {
		f.RemainingAh = o.RemainingAh
	}
	if o.Cycles != nil {
		f.Cycles = o.Cycles
	}
	if o.CellCount != nil {
		f.CellCount = o.CellCount
	}
	if o.TempCount != nil {
		f.TempCount = o.TempCount
	}
	if o.Alarms != nil {
		f.Alarms = o.Alarms
	}
	for i, q := range o.cells {
		f.SetCell(i, q)
	}
	for i, q := range o.temps {
		f.SetTemp(i, q)
	}
}

// orderedCells 自 0 起连续的电芯换算值；limit>0 时最多取 limit 路
func (f *Fields) orderedCells(limit int) []float64 {
	return ordered(f.cells, limit)
}

// orderedTemps 自 0 起连续的温度换算值；limit>0 时最多取 limit 路
func (f *Fields) orderedTemps(limit int) []float64 {
	return ordered(f.temps, limit)
}

func ordered(m map[int]Quantity, limit int) []float64 {
	if len(m) == 0 {
		return nil
	}
	n := len(m)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		q, ok := m[i]
		if !ok {
			// 序号不连续：残缺周期，截断到已知前缀
			break
		}
		out = append(out, q.Value())
	}
	return out
}
