package telemetry

import (
	"reflect"
	"testing"
)

func TestRedactKeysDropsValues(t *testing.T) {
	keys := RedactKeys(map[string]any{
		"phone_number":     "+61400000001",
		"customer_address": "12 Hidden Lane",
		"number_of_rooms":  3,
	})

	want := []string{"customer_address", "number_of_rooms", "phone_number"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want sorted %v", keys, want)
	}
	for _, k := range keys {
		if k == "+61400000001" || k == "12 Hidden Lane" {
			t.Fatalf("value leaked: %v", keys)
		}
	}
}

func TestRedactKeysEmpty(t *testing.T) {
	if got := RedactKeys(nil); got != nil {
		t.Errorf("keys = %v, want nil", got)
	}
}
