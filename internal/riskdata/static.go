// Package riskdata 维护欺诈评分使用的风险参考数据。
// 当前只包含高风险目的地国家清单, 支持从 JSON 文件覆盖默认值。
package riskdata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// defaultHighRiskCountries 是内置的高风险目的地清单。
var defaultHighRiskCountries = []string{"CU", "IR", "KP", "SY"}

// Provider 回答某个目的地国家是否属于高风险清单。
type Provider interface {
	IsHighRiskCountry(country string) bool
}

// StaticProvider 基于内存集合实现 Provider, 并发安全。
type StaticProvider struct {
	mu        sync.RWMutex
	countries map[string]struct{}
}

// NewStaticProvider returns a provider seeded with the built-in list.
func NewStaticProvider() *StaticProvider {
	p := &StaticProvider{countries: make(map[string]struct{})}
	for _, code := range defaultHighRiskCountries {
		p.countries[code] = struct{}{}
	}
	return p
}

type riskFile struct {
	HighRiskCountries []string `json:"high_risk_countries"`
}

// LoadFromFile 用 JSON 文件中的清单替换当前集合。
func (p *StaticProvider) LoadFromFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取风险数据文件失败: %w", err)
	}
	var parsed riskFile
	if err := json.Unmarshal(content, &parsed); err != nil {
		return fmt.Errorf("解析风险数据文件失败: %w", err)
	}

	countries := make(map[string]struct{}, len(parsed.HighRiskCountries))
	for _, code := range parsed.HighRiskCountries {
		code = normalize(code)
		if code == "" {
			continue
		}
		countries[code] = struct{}{}
	}

	p.mu.Lock()
	p.countries = countries
	p.mu.Unlock()
	return nil
}

// Add 把一个国家代码加入高风险清单。
func (p *StaticProvider) Add(country string) {
	country = normalize(country)
	if country == "" {
		return
	}
	p.mu.Lock()
	p.countries[country] = struct{}{}
	p.mu.Unlock()
}

// IsHighRiskCountry 判断目的地是否在高风险清单内, 匹配忽略大小写。
func (p *StaticProvider) IsHighRiskCountry(country string) bool {
	country = normalize(country)
	if country == "" {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.countries[country]
	return ok
}

// Countries 返回排序后的清单快照, 便于诊断接口输出。
func (p *StaticProvider) Countries() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.countries))
	for code := range p.countries {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func normalize(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

var _ Provider = (*StaticProvider)(nil)
