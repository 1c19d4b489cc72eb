package profile

import (
	"bytes"
	"errors"
	"time"
)

// Emit 一次 Feed 产生的事件：完整有效帧，或带 Err 的被丢弃坏帧跨度
type Emit struct {
	Profile Profile
	// Frame 完整有效帧的独立副本；Err 非 nil 时为空
	Frame []byte
	// At 出帧时刻（帧在缓冲中凑齐并通过校验的时间）
	At time.Time
	// Err 非 nil 表示该帧跨度校验失败被整体丢弃
	Err error
}

// Reassembler 单连接通知流重组器：把任意切分的 BLE 分片还原为协议帧。
// 非并发安全，由会话 goroutine 独占。
type Reassembler struct {
	profiles []Profile // 未绑定时的候选档案，按厂商优先级排列
	bound    Profile
	buf      []byte
	// maxKeep 缓冲上界：超出即判定无帧可出，丢弃最旧字节
	maxKeep int
	// sinceFrame 自上次成功出帧起累计丢弃的字节数
	sinceFrame int
	now        func() time.Time
}

// NewReassembler 构造重组器；profiles 为空时只能在 Bind 后工作
func NewReassembler(profiles []Profile) *Reassembler {
	r := &Reassembler{profiles: profiles, now: time.Now}
	for _, p := range profiles {
		if n := p.MaxFrameSize(); n > r.maxKeep {
			r.maxKeep = n
		}
	}
	if r.maxKeep == 0 {
		r.maxKeep = 512
	}
	return r
}

// Bind 锁定单一档案，后续只按其规则扫描
func (r *Reassembler) Bind(p Profile) {
	r.bound = p
	if n := p.MaxFrameSize(); n > r.maxKeep {
		r.maxKeep = n
	}
}

// Unbind 解除绑定，回到多档案探测扫描
func (r *Reassembler) Unbind() { r.bound = nil }

// Bound 当前绑定的档案，未绑定为 nil
func (r *Reassembler) Bound() Profile { return r.bound }

// Reset 清空缓冲与丢弃计数（断开重连、档案降级时调用）
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.sinceFrame = 0
}

// Buffered 当前缓冲字节数
func (r *Reassembler) Buffered() int { return len(r.buf) }

// DiscardedSinceFrame 自上次成功出帧起丢弃的字节数；
// 上层据此判定"无档案匹配"上报阈值
func (r *Reassembler) DiscardedSinceFrame() int { return r.sinceFrame }

// Feed 追加一个分片并提取其中所有可判定的帧事件。
// 分片可在任意字节边界切分，包括单字节。
func (r *Reassembler) Feed(chunk []byte) []Emit {
	if len(chunk) > 0 {
		r.buf = append(r.buf, chunk...)
	}
	var out []Emit
	for {
		var (
			em   *Emit
			more bool
		)
		if r.bound != nil {
			em, more = r.scanBound()
		} else {
			em, more = r.scanDetect()
		}
		if em != nil {
			out = append(out, *em)
		}
		if !more {
			break
		}
	}
	r.trim()
	return out
}

// scanBound 绑定模式扫描；返回的 more 表示缓冲有消耗、应再扫一轮
func (r *Reassembler) scanBound() (*Emit, bool) {
	p := r.bound
	marker := p.StartMarker()
	i := bytes.Index(r.buf, marker)
	if i < 0 {
		// 无起始标记：只保留可能跨分片边界的标记尾部
		if keep := len(marker) - 1; len(r.buf) > keep {
			r.drop(len(r.buf) - keep)
		}
		return nil, false
	}
	if i > 0 {
		r.drop(i)
	}
	if len(r.buf) < p.MinHeader() {
		return nil, false
	}
	size, err := p.FrameSize(r.buf)
	if err != nil {
		if errors.Is(err, ErrNeedMore) {
			return nil, false
		}
		// 头部畸形：滑动一字节重新同步
		r.drop(1)
		return nil, true
	}
	if size > p.MaxFrameSize() {
		r.drop(1)
		return nil, true
	}
	if len(r.buf) < size {
		return nil, false
	}
	if err := p.Validate(r.buf[:size]); err != nil {
		// 整帧跨度丢弃，保留其后字节继续扫描
		r.drop(size)
		return &Emit{Profile: p, At: r.now(), Err: err}, true
	}
	frame := make([]byte, size)
	copy(frame, r.buf[:size])
	r.consume(size)
	return &Emit{Profile: p, Frame: frame, At: r.now()}, true
}

// scanDetect 探测模式扫描：按优先级尝试每个候选档案的每个标记位置，
// 只有产出有效帧才消耗缓冲
func (r *Reassembler) scanDetect() (*Emit, bool) {
	waiting := false
	for _, p := range r.profiles {
		marker := p.StartMarker()
		from := 0
		for from <= len(r.buf)-1 {
			i := bytes.Index(r.buf[from:], marker)
			if i < 0 {
				break
			}
			at := from + i
			seg := r.buf[at:]
			if len(seg) < p.MinHeader() {
				waiting = true
				break
			}
			size, err := p.FrameSize(seg)
			if err != nil {
				if errors.Is(err, ErrNeedMore) {
					waiting = true
					break
				}
				from = at + 1
				continue
			}
			if size > p.MaxFrameSize() {
				from = at + 1
				continue
			}
			if len(seg) < size {
				waiting = true
				break
			}
			if p.Validate(seg[:size]) != nil {
				from = at + 1
				continue
			}
			frame := make([]byte, size)
			copy(frame, seg[:size])
			if at > 0 {
				r.drop(at)
			}
			r.consume(size)
			return &Emit{Profile: p, Frame: frame, At: r.now()}, true
		}
	}
	if !waiting {
		// 所有档案的所有标记位置都已排除：缓冲为纯噪声，
		// 仅保留可能跨界的最长标记前缀
		keep := r.maxMarkerLen() - 1
		if keep < 0 {
			keep = 0
		}
		if len(r.buf) > keep {
			r.drop(len(r.buf) - keep)
		}
	}
	return nil, false
}

func (r *Reassembler) maxMarkerLen() int {
	n := 0
	for _, p := range r.profiles {
		if l := len(p.StartMarker()); l > n {
			n = l
		}
	}
	return n
}

// trim 缓冲水位上界：超过最大帧长仍无帧可出，则最旧字节不可能再成帧
func (r *Reassembler) trim() {
	if len(r.buf) > r.maxKeep {
		r.drop(len(r.buf) - r.maxKeep)
	}
}

// drop 丢弃头部 n 字节并计入丢弃量
func (r *Reassembler) drop(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
	r.sinceFrame += n
}

// consume 出帧消耗头部 n 字节；成功出帧即视为重新同步
func (r *Reassembler) consume(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
	r.sinceFrame = 0
}
