package otel

import (
	"context"
	"testing"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "medianest", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.LoggerProvider == nil {
		t.Fatal("LoggerProvider is nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "medianest", false); err == nil {
		t.Fatal("expected error for endpoint without host")
	}
}

func TestNewProviders_WhitespaceEndpoint(t *testing.T) {
	p, err := NewProviders(context.Background(), "   ", "medianest", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.LoggerProvider == nil {
		t.Fatal("LoggerProvider is nil")
	}
}
