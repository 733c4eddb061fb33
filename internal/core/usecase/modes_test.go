package usecase

import (
	"testing"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

func TestModeProfileRegistryDefaultsSatisfyInvariants(t *testing.T) {
	registry, err := NewModeProfileRegistry(domain.ModeProfile{}, domain.ModeProfile{}, domain.ModeProfile{})
	if err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}

	fast := registry.ProfileFor(domain.ModeFast)
	balanced := registry.ProfileFor(domain.ModeBalanced)
	deep := registry.ProfileFor(domain.ModeDeep)

	if !(fast.Timeout < balanced.Timeout && balanced.Timeout < deep.Timeout) {
		t.Fatalf("expected strictly increasing timeouts, got %v %v %v", fast.Timeout, balanced.Timeout, deep.Timeout)
	}
	if fast.TopK > balanced.TopK || balanced.TopK > deep.TopK {
		t.Fatalf("expected non-decreasing top_k, got %d %d %d", fast.TopK, balanced.TopK, deep.TopK)
	}
}

func TestModeProfileRegistryRejectsInvertedTimeouts(t *testing.T) {
	_, err := NewModeProfileRegistry(
		domain.ModeProfile{Timeout: 5 * time.Second, TopK: 3},
		domain.ModeProfile{Timeout: 2 * time.Second, TopK: 5},
		domain.ModeProfile{Timeout: 10 * time.Second, TopK: 10},
	)
	if err == nil {
		t.Fatalf("expected validation error for inverted fast/balanced timeouts")
	}
}

func TestModeProfileRegistryRejectsDecreasingTopK(t *testing.T) {
	_, err := NewModeProfileRegistry(
		domain.ModeProfile{Timeout: 1 * time.Second, TopK: 8},
		domain.ModeProfile{Timeout: 2 * time.Second, TopK: 5},
		domain.ModeProfile{Timeout: 10 * time.Second, TopK: 10},
	)
	if err == nil {
		t.Fatalf("expected validation error for decreasing top_k")
	}
}

func TestProfileForUnknownModeFallsBackToBalanced(t *testing.T) {
	registry, err := NewModeProfileRegistry(domain.ModeProfile{}, domain.ModeProfile{}, domain.ModeProfile{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	got := registry.ProfileFor(domain.Mode("unknown"))
	if got != registry.ProfileFor(domain.ModeBalanced) {
		t.Fatalf("expected balanced fallback profile, got %+v", got)
	}
}
