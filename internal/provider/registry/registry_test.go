package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

type stubGateway struct{ model string }

func (s *stubGateway) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{Content: "ok", Model: s.model}, nil
}

func register(t *testing.T, typ string) {
	t.Helper()
	RegisterFactory(GatewayFactory{
		Type:    typ,
		APIType: domain.APITypeOpenAI,
		Create: func(cfg config.LLMConfig) (ports.Gateway, error) {
			return &stubGateway{model: cfg.Model}, nil
		},
	})
}

func TestRegisterFactory(t *testing.T) {
	ClearFactories()
	t.Cleanup(ClearFactories)

	register(t, "zeta")
	register(t, "alpha")

	if !IsRegistered("alpha") || IsRegistered("gemini") {
		t.Fatal("IsRegistered mismatch")
	}

	types := ListProviderTypes()
	if len(types) != 2 || types[0] != "alpha" || types[1] != "zeta" {
		t.Errorf("ListProviderTypes() = %v, want sorted [alpha zeta]", types)
	}
}

func TestRegisterFactory_DuplicatePanics(t *testing.T) {
	ClearFactories()
	t.Cleanup(ClearFactories)

	register(t, "dup")
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	register(t, "dup")
}

func TestRegisterFactory_MissingCreatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic without Create")
		}
	}()
	RegisterFactory(GatewayFactory{Type: "broken"})
}

func TestCreateFromFactory(t *testing.T) {
	ClearFactories()
	t.Cleanup(ClearFactories)
	register(t, "stub")

	gw, err := CreateFromFactory(config.LLMConfig{Provider: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateFromFactory() error = %v", err)
	}
	resp, _ := gw.Complete(context.Background(), &domain.CompletionRequest{})
	if resp.Model != "m1" {
		t.Errorf("model = %q, want m1", resp.Model)
	}

	if _, err := CreateFromFactory(config.LLMConfig{Provider: "unknown"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider error = %v, want ErrUnknownProvider", err)
	}
}

func TestCreateFromFactory_Validation(t *testing.T) {
	ClearFactories()
	t.Cleanup(ClearFactories)

	created := false
	RegisterFactory(GatewayFactory{
		Type: "strict",
		Create: func(cfg config.LLMConfig) (ports.Gateway, error) {
			created = true
			return &stubGateway{}, nil
		},
		ValidateConfig: func(cfg config.LLMConfig) error {
			if cfg.APIKey == "" {
				return errors.New("api key required")
			}
			return nil
		},
	})

	_, err := CreateFromFactory(config.LLMConfig{Provider: "strict"})
	if err == nil || !strings.Contains(err.Error(), "api key required") {
		t.Fatalf("error = %v, want validation failure", err)
	}
	if created {
		t.Error("Create called despite failed validation")
	}
}
