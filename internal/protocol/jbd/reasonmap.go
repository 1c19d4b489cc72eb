package jbd

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// protectionBits 0x03 应答保护标志位（bit0-bit12）的默认平台描述
var protectionBits = map[int]string{
	0:  "cell_overvoltage",
	1:  "cell_undervoltage",
	2:  "pack_overvoltage",
	3:  "pack_undervoltage",
	4:  "charge_overtemp",
	5:  "charge_undertemp",
	6:  "discharge_overtemp",
	7:  "discharge_undertemp",
	8:  "charge_overcurrent",
	9:  "discharge_overcurrent",
	10: "short_circuit",
	11: "afe_error",
	12: "mos_software_lock",
}

// ReasonMap 保护位到描述的映射，可用 YAML 文件覆盖默认值。
// 运行期只读，Load 仅应在启动阶段调用。
type ReasonMap struct {
	mu sync.RWMutex
	m  map[int]string
}

// DefaultReasonMap 内置默认映射
func DefaultReasonMap() *ReasonMap {
	m := make(map[int]string, len(protectionBits))
	for k, v := range protectionBits {
		m[k] = v
	}
	return &ReasonMap{m: m}
}

// LoadFile 从 YAML 文件合并覆盖，格式为 bit 序号到描述的映射
func (r *ReasonMap) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read reason map: %w", err)
	}
	var override map[int]string
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parse reason map: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range override {
		if k < 0 || k > 15 {
			return fmt.Errorf("reason map: bit %d out of range", k)
		}
		r.m[k] = v
	}
	return nil
}

// Describe 把置位的保护标志翻译为描述列表，按 bit 序号升序；无置位返回 nil
func (r *ReasonMap) Describe(flags uint16) []string {
	if flags == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for bit := 0; bit < 16; bit++ {
		if flags&(1<<bit) == 0 {
			continue
		}
		if desc, ok := r.m[bit]; ok {
			out = append(out, desc)
		} else {
			out = append(out, fmt.Sprintf("protection_bit_%d", bit))
		}
	}
	return out
}
