package tenant

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("пустой контекст не должен содержать арендатора")
	}
	if _, ok := FromContext(WithTenant(context.Background(), "  ")); ok {
		t.Error("пробельный идентификатор не должен считаться арендатором")
	}

	id, ok := FromContext(WithTenant(context.Background(), "acme"))
	if !ok || id != "acme" {
		t.Errorf("FromContext = %q, %v", id, ok)
	}
}
