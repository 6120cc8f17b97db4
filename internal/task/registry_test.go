package task

import (
	"errors"
	"testing"
)

func TestRegistryGetUnknownServiceFails(t *testing.T) {
	r := NewServiceRegistry()
	_, err := r.Get("does-not-exist")
	var notFound *ServiceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ServiceNotFoundError, got %v", err)
	}
}

func TestDefaultRegistryHasNetflixAndAccountSettings(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"netflix", "account-settings"} {
		cfg, err := r.Get(name)
		if err != nil {
			t.Fatalf("expected %q to be registered: %v", name, err)
		}
		if cfg.Name != name {
			t.Errorf("expected config name %q, got %q", name, cfg.Name)
		}
		if len(cfg.SuccessIndicators) == 0 || len(cfg.CheckpointConditions) == 0 {
			t.Errorf("expected %q to have non-empty predicate lists", name)
		}
	}
}
