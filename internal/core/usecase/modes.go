package usecase

import (
	"fmt"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// ModeProfileRegistry is the static table of per-mode resource budgets.
type ModeProfileRegistry struct {
	profiles map[domain.Mode]domain.ModeProfile
}

func NewModeProfileRegistry(fast, balanced, deep domain.ModeProfile) (*ModeProfileRegistry, error) {
	applyProfileDefaults(&fast, 1500*time.Millisecond, 3, 15*time.Minute, 256)
	applyProfileDefaults(&balanced, 4*time.Second, 5, 10*time.Minute, 512)
	applyProfileDefaults(&deep, 12*time.Second, 10, 5*time.Minute, 1024)

	registry := &ModeProfileRegistry{
		profiles: map[domain.Mode]domain.ModeProfile{
			domain.ModeFast:     fast,
			domain.ModeBalanced: balanced,
			domain.ModeDeep:     deep,
		},
	}
	if err := registry.validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (r *ModeProfileRegistry) ProfileFor(mode domain.Mode) domain.ModeProfile {
	profile, ok := r.profiles[mode]
	if !ok {
		return r.profiles[domain.ModeBalanced]
	}
	return profile
}

// validate enforces the budget ordering: timeouts strictly increase
// FAST→BALANCED→DEEP and top_k never decreases.
func (r *ModeProfileRegistry) validate() error {
	fast := r.profiles[domain.ModeFast]
	balanced := r.profiles[domain.ModeBalanced]
	deep := r.profiles[domain.ModeDeep]

	if !(fast.Timeout < balanced.Timeout && balanced.Timeout < deep.Timeout) {
		return fmt.Errorf("mode profiles: timeouts must strictly increase fast<balanced<deep (%v, %v, %v)",
			fast.Timeout, balanced.Timeout, deep.Timeout)
	}
	if fast.TopK > balanced.TopK || balanced.TopK > deep.TopK {
		return fmt.Errorf("mode profiles: top_k must be non-decreasing fast<=balanced<=deep (%d, %d, %d)",
			fast.TopK, balanced.TopK, deep.TopK)
	}
	return nil
}

func applyProfileDefaults(p *domain.ModeProfile, timeout time.Duration, topK int, ttl time.Duration, maxTokens int) {
	if p.Timeout <= 0 {
		p.Timeout = timeout
	}
	if p.TopK <= 0 {
		p.TopK = topK
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = ttl
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = maxTokens
	}
}
